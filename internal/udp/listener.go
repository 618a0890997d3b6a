package udp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// Listener is a single-reader UDP receiver for one port. Parsed datagrams
// are handed to the consumer as raw byte slices; decoding stays with the
// caller so one listener can serve a mixed-type port.
type Listener struct {
	conn *net.UDPConn
	port int
}

// NewListener binds 127.0.0.1:port.
func NewListener(port int) (*Listener, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind UDP 127.0.0.1:%d: %w", port, err)
	}
	log.Debug().Int("port", port).Msg("UDP listener bound")
	return &Listener{conn: conn, port: port}, nil
}

// Run reads datagrams until the listener is closed, pushing each packet into
// out. A copy is made per packet so the buffer can be reused.
func (l *Listener) Run(out chan<- []byte) {
	buf := make([]byte, 2048)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Int("port", l.port).Msg("UDP read error")
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case out <- pkt:
		default:
			log.Warn().Int("port", l.port).Msg("receiver channel full, dropping datagram")
		}
	}
}

// Close shuts the socket down; Run returns afterwards.
func (l *Listener) Close() error { return l.conn.Close() }

// AdviceListener drains advisory packets without ever blocking the decision
// loop. Low-confidence advisories are filtered at the socket edge.
type AdviceListener struct {
	conn          *net.UDPConn
	minConfidence uint8
}

// NewAdviceListener binds the advice bus port.
func NewAdviceListener(port int, minConfidence uint8) (*AdviceListener, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind advice bus 127.0.0.1:%d: %w", port, err)
	}
	log.Debug().Int("port", port).Msg("advice bus listening")
	return &AdviceListener{conn: conn, minConfidence: minConfidence}, nil
}

// TryRecv attempts to read one advisory without blocking longer than the
// poll deadline. Returns nil when nothing is pending or the packet is
// filtered.
func (a *AdviceListener) TryRecv() *Advisory {
	a.conn.SetReadDeadline(time.Now().Add(10 * time.Microsecond))
	buf := make([]byte, AdvisorySize)
	n, _, err := a.conn.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil
		}
		if !errors.Is(err, net.ErrClosed) {
			log.Warn().Err(err).Msg("advice bus read error")
		}
		return nil
	}
	if n < AdvisoryMinSize {
		log.Warn().Int("bytes", n).Msg("undersized advisory, dropping")
		return nil
	}
	adv, err := DecodeAdvisory(buf[:n])
	if err != nil {
		log.Warn().Err(err).Msg("failed to parse advisory")
		return nil
	}
	if adv.EffectiveConfidence() < a.minConfidence {
		log.Debug().Uint8("confidence", adv.EffectiveConfidence()).Msg("rejected low-confidence advisory")
		return nil
	}
	return adv
}

// Drain reads up to maxPerTick advisories in one call.
func (a *AdviceListener) Drain(maxPerTick int) []*Advisory {
	advisories := make([]*Advisory, 0, maxPerTick)
	for i := 0; i < maxPerTick; i++ {
		adv := a.TryRecv()
		if adv == nil {
			break
		}
		advisories = append(advisories, adv)
	}
	return advisories
}

// Close shuts the advice socket down.
func (a *AdviceListener) Close() error { return a.conn.Close() }
