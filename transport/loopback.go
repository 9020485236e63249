package transport

import "net"

// Loopback connects a host endpoint to a bootloader transport in memory.
// Writes on the host side become bytes in the returned Queue and
// Queue.WriteBytes becomes readable on the host side.
func Loopback(capacity int) (host net.Conn, device *Queue) {
	hostEnd, deviceEnd := net.Pipe()
	return hostEnd, NewQueue(deviceEnd, capacity)
}
