package transport_test

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/3kwa/goingnats/transport"
)

var _ = Describe("transport", func() {
	var (
		listener net.Listener
		accepted chan net.Conn
	)

	BeforeEach(func() {
		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(Succeed())

		accepted = make(chan net.Conn, 1)
		go func() {
			conn, err := listener.Accept()
			if err == nil {
				accepted <- conn
			}
		}()
	})

	AfterEach(func() {
		listener.Close()
	})

	dial := func() *transport.Conn {
		conn, err := transport.Dial(context.Background(), transport.Options{
			Host: "127.0.0.1",
			Port: listener.Addr().(*net.TCPAddr).Port,
		})
		Expect(err).To(Succeed())
		return conn
	}

	Describe("Dial()", func() {
		It("fails when nothing listens on the address", func() {
			_, err := transport.Dial(context.Background(), transport.Options{
				Host:        "127.0.0.1",
				Port:        1,
				DialTimeout: time.Second,
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Send()", func() {
		It("writes the bytes to the socket", func() {
			conn := dial()
			defer conn.Close()

			Expect(conn.Send([]byte("PING\r\n"))).To(Succeed())

			var server net.Conn
			Eventually(accepted).Should(Receive(&server))
			defer server.Close()

			received := make([]byte, 6)
			_, err := io.ReadFull(server, received)
			Expect(err).To(Succeed())
			Expect(string(received)).To(Equal("PING\r\n"))
		})

		It("fails once the connection is closed", func() {
			conn := dial()
			Expect(conn.Close()).To(Succeed())

			Expect(errors.Is(conn.Send([]byte("PING\r\n")), transport.ErrClosed)).To(BeTrue())
		})
	})

	Describe("ReceiveChunk()", func() {
		It("returns the bytes the server sent", func() {
			conn := dial()
			defer conn.Close()

			var server net.Conn
			Eventually(accepted).Should(Receive(&server))
			defer server.Close()

			_, err := server.Write([]byte("INFO {}\r\n"))
			Expect(err).To(Succeed())

			chunk, err := conn.ReceiveChunk()
			Expect(err).To(Succeed())
			Expect(string(chunk)).To(Equal("INFO {}\r\n"))
		})

		It("returns io.EOF on an orderly close by the server", func() {
			conn := dial()
			defer conn.Close()

			var server net.Conn
			Eventually(accepted).Should(Receive(&server))
			server.Close()

			_, err := conn.ReceiveChunk()
			Expect(errors.Is(err, io.EOF)).To(BeTrue())
		})

		It("honours a read deadline", func() {
			conn := dial()
			defer conn.Close()

			Expect(conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))).To(Succeed())

			_, err := conn.ReceiveChunk()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			conn := dial()

			Expect(conn.Close()).To(Succeed())
			Expect(func() { _ = conn.Close() }).NotTo(Panic())
		})

		It("unblocks a pending ReceiveChunk", func() {
			conn := dial()

			received := make(chan error, 1)
			go func() {
				_, err := conn.ReceiveChunk()
				received <- err
			}()

			time.Sleep(50 * time.Millisecond)
			Expect(conn.Close()).To(Succeed())

			var err error
			Eventually(received, "2s").Should(Receive(&err))
			Expect(err).To(HaveOccurred())
		})
	})
})
