package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	maxFileSizeBytes = 10 * 1024 * 1024
	maxGrepFileBytes = 2 * 1024 * 1024
	maxGrepMatches   = 200
	maxGlobResults   = 500
)

func resolvePath(tc *ToolContext, p string) string {
	if p == "" {
		return tc.WorkingDir
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(tc.WorkingDir, p)
}

func skipDir(name string) bool {
	return name == ".git" || name == "node_modules"
}

func registerFileTools(s *ToolSet) {
	s.Register(&Tool{
		Name:        "readFile",
		Description: "Read a file. Long files are truncated; use offset and limit to read a specific line range.",
		Parameters: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path, absolute or relative to the working directory",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "1-based first line to return",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Number of lines to return",
			},
		}, "path"),
		Returns: objectSchema(map[string]any{
			"path":       retProp("string"),
			"content":    retProp("string"),
			"totalLines": retProp("integer"),
			"truncated":  retProp("boolean"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			p, ok := StringArg(args, "path")
			if !ok || p == "" {
				return "", fmt.Errorf("path is required")
			}
			full := resolvePath(tc, p)

			info, err := os.Stat(full)
			if err != nil {
				return "", err
			}
			if info.Size() > maxFileSizeBytes {
				return "", fmt.Errorf("file too large (%d bytes)", info.Size())
			}

			data, err := os.ReadFile(full)
			if err != nil {
				return "", err
			}
			content := string(data)

			totalLines := strings.Count(content, "\n") + 1
			if offset, ok := IntArg(args, "offset"); ok && offset > 1 {
				lines := strings.Split(content, "\n")
				if offset > len(lines) {
					offset = len(lines)
				}
				lines = lines[offset-1:]
				if limit, ok := IntArg(args, "limit"); ok && limit > 0 && limit < len(lines) {
					lines = lines[:limit]
				}
				content = strings.Join(lines, "\n")
			} else if limit, ok := IntArg(args, "limit"); ok && limit > 0 {
				lines := strings.Split(content, "\n")
				if limit < len(lines) {
					content = strings.Join(lines[:limit], "\n")
				}
			}

			truncated := len(content) > toolCharLimit("readFile", tc.LoopCfg.ToolOutputLimits)
			content = truncateFor(tc, "readFile", content)

			return jsonOut(map[string]any{
				"path":       p,
				"content":    content,
				"totalLines": totalLines,
				"truncated":  truncated,
			})
		},
	})

	s.Register(&Tool{
		Name:        "writeFile",
		Description: "Write a file, creating parent directories as needed. Overwrites existing content.",
		Parameters: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path, absolute or relative to the working directory",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full file content",
			},
		}, "path", "content"),
		Returns: objectSchema(map[string]any{
			"path":         retProp("string"),
			"bytesWritten": retProp("integer"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			p, ok := StringArg(args, "path")
			if !ok || p == "" {
				return "", fmt.Errorf("path is required")
			}
			content, ok := StringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			full := resolvePath(tc, p)
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return "", err
			}
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return "", err
			}
			return jsonOut(map[string]any{"path": p, "bytesWritten": len(content)})
		},
	})

	s.Register(&Tool{
		Name:        "editFile",
		Description: "Replace text in a file. oldString must match exactly; if it matches more than once, pass replaceAll or make it more specific.",
		Parameters: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path, absolute or relative to the working directory",
			},
			"oldString": map[string]any{
				"type":        "string",
				"description": "Exact text to replace",
			},
			"newString": map[string]any{
				"type":        "string",
				"description": "Replacement text",
			},
			"replaceAll": map[string]any{
				"type":        "boolean",
				"description": "Replace every occurrence instead of requiring a unique match",
			},
		}, "path", "oldString", "newString"),
		Returns: objectSchema(map[string]any{
			"path":         retProp("string"),
			"replacements": retProp("integer"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			p, ok := StringArg(args, "path")
			if !ok || p == "" {
				return "", fmt.Errorf("path is required")
			}
			oldString, ok := StringArg(args, "oldString")
			if !ok || oldString == "" {
				return "", fmt.Errorf("oldString is required")
			}
			newString, _ := StringArg(args, "newString")
			replaceAll, _ := BoolArg(args, "replaceAll")

			full := resolvePath(tc, p)
			data, err := os.ReadFile(full)
			if err != nil {
				return "", err
			}
			content := string(data)

			count := strings.Count(content, oldString)
			if count == 0 {
				return "", fmt.Errorf("oldString not found in %s", p)
			}
			if count > 1 && !replaceAll {
				return "", fmt.Errorf("oldString matches %d times in %s; pass replaceAll or include more context", count, p)
			}

			replacements := 1
			if replaceAll {
				content = strings.ReplaceAll(content, oldString, newString)
				replacements = count
			} else {
				content = strings.Replace(content, oldString, newString, 1)
			}
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return "", err
			}
			return jsonOut(map[string]any{"path": p, "replacements": replacements})
		},
	})

	s.Register(&Tool{
		Name:        "grep",
		Description: "Search file contents with a regular expression. Returns file:line: text matches.",
		Parameters: objectSchema(map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to search for",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory or file to search, defaulting to the working directory",
			},
			"include": map[string]any{
				"type":        "string",
				"description": "Only search files whose name matches this glob, e.g. *.go",
			},
		}, "pattern"),
		Returns: objectSchema(map[string]any{
			"matches":   retProp("string"),
			"count":     retProp("integer"),
			"truncated": retProp("boolean"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			pattern, ok := StringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid pattern: %w", err)
			}
			include := StringArgOr(args, "include", "")
			if include != "" {
				if _, err := path.Match(include, "probe"); err != nil {
					return "", fmt.Errorf("invalid include glob: %w", err)
				}
			}
			root := resolvePath(tc, StringArgOr(args, "path", ""))

			var matches []string
			truncated := false
			err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if skipDir(d.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				if len(matches) >= maxGrepMatches {
					truncated = true
					return filepath.SkipAll
				}
				if include != "" {
					if ok, _ := path.Match(include, d.Name()); !ok {
						return nil
					}
				}
				info, err := d.Info()
				if err != nil || info.Size() > maxGrepFileBytes {
					return nil
				}
				data, err := os.ReadFile(p)
				if err != nil || bytes.IndexByte(data, 0) >= 0 {
					return nil
				}
				rel, relErr := filepath.Rel(root, p)
				if relErr != nil {
					rel = p
				}
				for i, line := range strings.Split(string(data), "\n") {
					if re.MatchString(line) {
						matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, line))
						if len(matches) >= maxGrepMatches {
							truncated = true
							break
						}
					}
				}
				return nil
			})
			if err != nil {
				return "", err
			}

			out := truncateFor(tc, "grep", strings.Join(matches, "\n"))
			return jsonOut(map[string]any{
				"matches":   out,
				"count":     len(matches),
				"truncated": truncated,
			})
		},
	})

	s.Register(&Tool{
		Name:        "glob",
		Description: "Find files matching a glob pattern. Supports ** for recursive matching, e.g. **/*.go.",
		Parameters: objectSchema(map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern relative to the search root",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search, defaulting to the working directory",
			},
		}, "pattern"),
		Returns: objectSchema(map[string]any{
			"files":     map[string]any{"type": "array", "items": retProp("string")},
			"count":     retProp("integer"),
			"truncated": retProp("boolean"),
		}),
		Execute: func(ctx context.Context, raw json.RawMessage, tc *ToolContext) (string, error) {
			args, err := ParseArgs(raw)
			if err != nil {
				return "", err
			}
			pattern, ok := StringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			root := resolvePath(tc, StringArgOr(args, "path", ""))

			var files []string
			truncated := false
			err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					if skipDir(d.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				if len(files) >= maxGlobResults {
					truncated = true
					return filepath.SkipAll
				}
				rel, relErr := filepath.Rel(root, p)
				if relErr != nil {
					return nil
				}
				if globMatch(pattern, filepath.ToSlash(rel)) {
					files = append(files, rel)
				}
				return nil
			})
			if err != nil {
				return "", err
			}
			sort.Strings(files)

			return jsonOut(map[string]any{
				"files":     files,
				"count":     len(files),
				"truncated": truncated,
			})
		},
	})
}

// globMatch matches a slash-separated relative path against a glob pattern
// where ** crosses directory boundaries.
func globMatch(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		if matchSegments(pat[1:], parts) {
			return true
		}
		return len(parts) > 0 && matchSegments(pat, parts[1:])
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:])
}
