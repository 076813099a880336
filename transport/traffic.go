package transport

import "sync"

// Traffic records the packets a socket sent or received. Packets are copied
// on the way in and on the way out.
type Traffic struct {
	sync.Mutex
	data []Packet
}

// Add records pkt.
func (t *Traffic) Add(pkt Packet) {
	t.Lock()
	defer t.Unlock()

	t.data = append(t.data, pkt.Copy())
}

// All returns the recorded packets, oldest first.
func (t *Traffic) All() []Packet {
	t.Lock()
	defer t.Unlock()

	res := make([]Packet, len(t.data))
	for i, pkt := range t.data {
		res[i] = pkt.Copy()
	}
	return res
}

// Len returns the number of recorded packets.
func (t *Traffic) Len() int {
	t.Lock()
	defer t.Unlock()

	return len(t.data)
}
