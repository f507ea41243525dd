// Command scancore is an internet-scale TCP/UDP port scanner: packet
// crafting, stateless/stateful probe correlation, adaptive rate control,
// and service detection wired together behind one CLI.
package main

func main() {
	Execute()
}
