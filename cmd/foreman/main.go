// Command foreman runs an autonomous coding agent from the terminal.
package main

func main() {
	Execute()
}
