// SPDX-License-Identifier: MIT

package rtsp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cseqRe = regexp.MustCompile(`(?i)CSeq:\s*(\d+)`)

// readOneRequest reads one RTSP request off r (up to the blank line) and
// returns its CSeq. ok is false on EOF/error.
func readOneRequest(r *bufio.Reader) (cseq int, ok bool) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, false
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		lines = append(lines, trimmed)
	}
	for _, l := range lines {
		if m := cseqRe.FindStringSubmatch(l); m != nil {
			fmt.Sscanf(m[1], "%d", &cseq)
			return cseq, true
		}
	}
	return 0, true
}

func writeStatus(t *testing.T, conn net.Conn, code int, cseq int) {
	t.Helper()
	_, err := fmt.Fprintf(conn, "RTSP/1.0 %d %s\r\nCSeq: %d\r\nContent-Length: 0\r\n\r\n", code, statusText(code), cseq)
	require.NoError(t, err)
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 404:
		return "Not Found"
	default:
		return "Error"
	}
}

func TestPooledProberClassifiesLiveAndNotFound(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			cseq, ok := readOneRequest(r)
			if !ok {
				return
			}
			if cseq == 1 {
				writeStatus(t, conn, 200, cseq)
			} else {
				writeStatus(t, conn, 404, cseq)
			}
		}
	}()

	p := NewPooledProber(DefaultPooledConfig(), nil)
	defer p.Close()

	url := fmt.Sprintf("rtsp://%s/stream", ln.Addr().String())
	res := p.Probe(context.Background(), url, time.Second)
	assert.Equal(t, StatusLive, res.Status)

	res = p.Probe(context.Background(), url, time.Second)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestPooledProberCSeqPermutation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	statusForCSeq := map[int]int{1: 404, 2: 200, 3: 500}

	reqSeen := make(chan int, 8)
	respond := make(chan struct{})

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		var received []int
		for len(received) < 3 {
			cseq, ok := readOneRequest(r)
			if !ok {
				return
			}
			received = append(received, cseq)
			reqSeen <- cseq
		}
		<-respond
		// Answer out of request order: 2, then 3, then 1.
		writeStatus(t, conn, statusForCSeq[2], 2)
		writeStatus(t, conn, statusForCSeq[3], 3)
		writeStatus(t, conn, statusForCSeq[1], 1)
	}()

	p := NewPooledProber(DefaultPooledConfig(), nil)
	defer p.Close()

	url := fmt.Sprintf("rtsp://%s/stream", ln.Addr().String())

	// Launch probes one at a time, each gated on the server having actually
	// received the previous request before the next is sent. Because a
	// single endpoint mutex covers CSeq assignment and the write together
	// (see endpoint.go), and each launch waits for the prior request to
	// land, this pins probe i=0,1,2 to CSeq 1,2,3 deterministically — so
	// each result can be checked against ITS OWN CSeq's scripted status
	// rather than just the overall multiset. A demuxer that resolved
	// pending requests in registration order instead of by CSeq would fail
	// this once responses arrive out of that order.
	type outcome struct {
		idx int
		res Result
	}
	results := make(chan outcome, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			results <- outcome{idx: i, res: p.Probe(context.Background(), url, 2*time.Second)}
		}(i)
		<-reqSeen
	}
	close(respond)

	got := make(map[int]Status)
	for i := 0; i < 3; i++ {
		o := <-results
		got[o.idx] = o.res.Status
	}

	assert.Equal(t, StatusNotFound, got[0]) // CSeq 1 -> 404
	assert.Equal(t, StatusLive, got[1])     // CSeq 2 -> 200
	assert.Equal(t, StatusError, got[2])    // CSeq 3 -> 500
}

func TestPooledProberTimeoutEmptiesPendingMap(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		// Accept the request but never respond.
		readOneRequest(r)
		time.Sleep(2 * time.Second)
	}()

	p := NewPooledProber(DefaultPooledConfig(), nil)
	defer p.Close()

	url := fmt.Sprintf("rtsp://%s/stream", ln.Addr().String())
	res := p.Probe(context.Background(), url, 100*time.Millisecond)
	assert.Equal(t, StatusTimeout, res.Status)

	key := ln.Addr().String()
	ep, _, err := p.pool.getOrDial(key, func() (net.Conn, error) {
		t.Fatal("endpoint should already be pooled, dial should not be invoked")
		return nil, nil
	})
	require.NoError(t, err)
	ep.mu.Lock()
	pendingLen := len(ep.pending)
	ep.mu.Unlock()
	assert.Equal(t, 0, pendingLen)
}

func TestPooledProberUnmatchedCSeqDoesNotResolveWrongProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		cseq, ok := readOneRequest(r)
		if !ok {
			return
		}
		// Send a response for a CSeq nobody is waiting on first.
		writeStatus(t, conn, 200, cseq+99)
		// Then the real answer.
		writeStatus(t, conn, 200, cseq)
	}()

	p := NewPooledProber(DefaultPooledConfig(), nil)
	defer p.Close()

	url := fmt.Sprintf("rtsp://%s/stream", ln.Addr().String())
	res := p.Probe(context.Background(), url, time.Second)
	assert.Equal(t, StatusLive, res.Status)
}

func TestPooledProberTransportCloseResolvesOutstandingAsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		r := bufio.NewReader(conn)
		readOneRequest(r)
		conn.Close() // close without ever responding
	}()

	p := NewPooledProber(DefaultPooledConfig(), nil)
	defer p.Close()

	url := fmt.Sprintf("rtsp://%s/stream", ln.Addr().String())
	res := p.Probe(context.Background(), url, 5*time.Second)
	assert.Equal(t, StatusError, res.Status)
}

func TestSerialProberClassifiesLive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		cseq, _ := readOneRequest(r)
		writeStatus(t, conn, 200, cseq)
	}()

	p := NewSerialProber(time.Second)
	url := fmt.Sprintf("rtsp://%s/stream", ln.Addr().String())
	res := p.Probe(context.Background(), url, time.Second)
	assert.Equal(t, StatusLive, res.Status)
}

func TestClassifyStatusCode(t *testing.T) {
	cases := []struct {
		code int
		want Status
	}{
		{200, StatusLive}, {204, StatusLive}, {299, StatusLive},
		{404, StatusNotFound},
		{500, StatusError}, {401, StatusError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classifyStatusCode(c.code))
	}
}

func TestClassifyResponseInvalidStartLine(t *testing.T) {
	resp := response{valid: false}
	assert.Equal(t, StatusInvalid, classifyResponse(resp))
}
