package simbus

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/allbin/go-uartbridge"
)

const (
	readBufferSize = 256
	drainTimeout   = 200 * time.Millisecond
)

// bridge is one enabled bridge: a listener and the connections accepted on it
type bridge struct {
	id     uartbridge.BridgeID
	device uartbridge.DeviceIdentifier
	port   uartbridge.BridgePort
	ln     net.Listener
	bus    *Bus

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newBridge(id uartbridge.BridgeID, device uartbridge.DeviceIdentifier, ln net.Listener, bus *Bus) *bridge {
	return &bridge{
		id:     id,
		device: device,
		port:   uartbridge.BridgePort(ln.Addr().(*net.TCPAddr).Port),
		ln:     ln,
		bus:    bus,
		conns:  make(map[net.Conn]struct{}),
	}
}

func (br *bridge) serve() {
	for {
		conn, err := br.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				br.bus.logger.Warn("bridge accept failed", "bridge", br.id, "error", err)
			}
			return
		}

		br.mu.Lock()
		if br.closed {
			br.mu.Unlock()
			conn.Close()
			return
		}
		br.conns[conn] = struct{}{}
		br.wg.Add(1)
		br.mu.Unlock()

		go br.handle(conn)
	}
}

func (br *bridge) handle(conn net.Conn) {
	defer br.wg.Done()
	defer func() {
		br.mu.Lock()
		delete(br.conns, conn)
		br.mu.Unlock()
		conn.Close()
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			br.bus.mirror(br.id, data)
			if br.bus.echo {
				if _, werr := conn.Write(data); werr != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// send writes data to every client of the bridge. A failing client is closed.
func (br *bridge) send(data []byte) {
	br.mu.Lock()
	defer br.mu.Unlock()

	for conn := range br.conns {
		if err := conn.SetWriteDeadline(time.Now().Add(time.Second)); err == nil {
			if _, err = conn.Write(data); err == nil {
				continue
			}
		}
		br.bus.logger.Warn("bridge client write failed", "bridge", br.id)
		conn.Close()
	}
}

func (br *bridge) connections() int {
	br.mu.Lock()
	defer br.mu.Unlock()
	return len(br.conns)
}

func (br *bridge) close() {
	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return
	}
	br.closed = true
	br.ln.Close()
	// Handlers read what is already buffered, then exit at EOF or the deadline
	// and close their connection.
	drainDeadline := time.Now().Add(drainTimeout)
	for conn := range br.conns {
		if err := conn.SetReadDeadline(drainDeadline); err != nil {
			conn.Close()
		}
	}
	br.mu.Unlock()

	br.wg.Wait()
}
