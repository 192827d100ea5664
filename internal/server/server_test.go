package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/mariusromeiser/sqkv"
	"github.com/mariusromeiser/sqkv/internal/proto"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	router := sqkv.NewRouter(sqkv.RouterConfig{
		ShardCount:       1,
		CapacityPerShard: 16,
		MaxKeyBytes:      sqkv.Unbounded,
		MaxValueBytes:    sqkv.Unbounded,
	}, sqkv.NewFakeClock(0))

	srv := &Server{
		Addr:       "127.0.0.1:0",
		Dispatcher: &proto.Dispatcher{Router: router},
	}

	ln, err := net.Listen("tcp", srv.Addr)
	require.NoError(t, err)
	srv.Addr = ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.serveOn(ln)
	}()

	return srv.Addr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
		<-errCh
	}
}

func TestServer_SetGetRoundTrip(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("SET a 1\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	_, err = conn.Write([]byte("GET a\n"))
	require.NoError(t, err)
	header, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "$1\r\n", header)
	body, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "1\r\n", body)
}

func TestServer_QuitClosesConnection(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	_, err = conn.Write([]byte("QUIT\n"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+Goodbye\r\n", line)

	_, err = reader.ReadString('\n')
	require.Error(t, err)
}
