package ping

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoData = "ipwatch"

// ICMPPinger sends ICMP echo requests. In privileged mode it opens a raw
// socket; otherwise it uses the kernel's unprivileged datagram ICMP socket,
// which rewrites the echo identifier, so replies are matched on sequence only.
type ICMPPinger struct {
	id         int
	seq        uint32
	privileged bool
}

// NewICMPPinger initializes a pinger with a process-scoped identifier.
func NewICMPPinger(privileged bool) *ICMPPinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff, privileged: privileged}
}

// Ping sends one ICMP echo request and waits for the matching reply.
func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ip, err := resolveIP(addr)
	if err != nil {
		return Result{Error: err}
	}

	settings := icmpSettings(ip, p.privileged)
	conn, err := icmp.ListenPacket(settings.network, "")
	if err != nil {
		return Result{Error: err}
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: settings.request,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte(echoData),
		},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return Result{Error: err}
	}

	if err := conn.SetDeadline(effectiveDeadline(ctx, timeout)); err != nil {
		return Result{Error: err}
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, destination(ip, p.privileged)); err != nil {
		return Result{Error: err}
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Error: err}
		}

		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return Result{Error: fmt.Errorf("%w: %s", ErrTimeout, addr)}
			}
			return Result{Error: err}
		}
		if peer == nil {
			continue
		}

		reply, err := icmp.ParseMessage(settings.protocol, buf[:n])
		if err != nil || reply.Type != settings.reply {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok || body.Seq != seq {
			continue
		}
		if p.privileged && body.ID != p.id {
			continue
		}

		return Result{Success: true, RTT: time.Since(start)}
	}
}

// resolveIP accepts literal addresses only; probing never triggers DNS.
// Dotted quads with zero-padded octets ("010.0.0.1") are read as decimal.
func resolveIP(addr string) (net.IP, error) {
	if ip := net.ParseIP(addr); ip != nil {
		return ip, nil
	}
	if ip := parsePaddedIPv4(addr); ip != nil {
		return ip, nil
	}
	return nil, fmt.Errorf("invalid IP address: %q", addr)
}

func parsePaddedIPv4(addr string) net.IP {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return nil
	}
	var octets [4]byte
	for i, part := range parts {
		if part == "" || len(part) > 3 {
			return nil
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 || part[0] == '+' || part[0] == '-' {
			return nil
		}
		octets[i] = byte(n)
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3])
}

type socketSettings struct {
	network  string
	protocol int
	request  icmp.Type
	reply    icmp.Type
}

func icmpSettings(ip net.IP, privileged bool) socketSettings {
	if ip.To4() != nil {
		s := socketSettings{
			network:  "udp4",
			protocol: ipv4.ICMPTypeEcho.Protocol(),
			request:  ipv4.ICMPTypeEcho,
			reply:    ipv4.ICMPTypeEchoReply,
		}
		if privileged {
			s.network = "ip4:icmp"
		}
		return s
	}
	s := socketSettings{
		network:  "udp6",
		protocol: ipv6.ICMPTypeEchoRequest.Protocol(),
		request:  ipv6.ICMPTypeEchoRequest,
		reply:    ipv6.ICMPTypeEchoReply,
	}
	if privileged {
		s.network = "ip6:ipv6-icmp"
	}
	return s
}

func destination(ip net.IP, privileged bool) net.Addr {
	if privileged {
		return &net.IPAddr{IP: ip}
	}
	return &net.UDPAddr{IP: ip}
}

func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
