// Command wireveil runs a bidirectional UDP relay that obfuscates
// WireGuard traffic and, optionally, wraps it in synthetic STUN framing.
package main

func main() {
	Execute()
}
