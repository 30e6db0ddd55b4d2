// Command loom plans messages into task graphs, runs them through generator
// agents and executes the resulting tool calls against the platform.
package main

func main() {
	Execute()
}
