package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3kwa/goingnats/client"
	"github.com/3kwa/goingnats/internal/broker"
	"github.com/3kwa/goingnats/internal/env"
)

var demoExternal bool

func init() {
	flags := DemoCmd.PersistentFlags()

	flags.BoolVar(&demoExternal, "external", false,
		"connect to the server from the environment instead of an embedded broker")
}

var DemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the three client demo scenario",
	Long: `Run the three client demo scenario

A publisher publishes the time every second, a responder answers
requests for today's date, and a consumer prints five messages and
issues one request along the way. By default everything runs against an
embedded broker.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.Debug)
		if err != nil {
			return err
		}

		host, port := conf.Host, conf.Port

		if !demoExternal {
			b := broker.New(broker.Options{Host: "127.0.0.1", Port: 0, Log: log.Named("broker")})
			if err := b.Start(ctx); err != nil {
				return err
			}
			defer b.Close()

			host = "127.0.0.1"
			port = b.Addr().(*net.TCPAddr).Port
		}

		connect := func(name string) (*client.Client, error) {
			return client.Connect(ctx, client.Options{
				Name: name,
				Host: host,
				Port: port,
				Log:  log.Named(name),
			})
		}

		// publish time.time every second
		publisher, err := connect("publisher")
		if err != nil {
			return err
		}
		defer publisher.Close()

		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case t := <-ticker.C:
					if err := publisher.Publish("time.time", []byte(t.Format(time.RFC3339))); err != nil {
						return
					}
				}
			}
		}()

		// respond to requests for today with the date
		responder, err := connect("responder")
		if err != nil {
			return err
		}
		defer responder.Close()

		if err := responder.Subscribe("today"); err != nil {
			return err
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				for _, request := range responder.Get(time.Second) {
					// the payload is a date layout, defaulting to ISO
					layout := "2006-01-02"
					if len(request.Payload) > 0 {
						layout = string(request.Payload)
					}

					if err := responder.Publish(request.Inbox, []byte(time.Now().Format(layout))); err != nil {
						return
					}
				}
			}
		}()

		// the application consumes five messages and requests today once
		consumer, err := connect("consumer")
		if err != nil {
			return err
		}
		defer consumer.Close()

		if err := consumer.Subscribe("time.time"); err != nil {
			return err
		}

		received := 0
		requested := false

		for received < 5 {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			for _, message := range consumer.Get(time.Second) {
				fmt.Printf("%s %s\n", message.Subject, message.Payload)
				received++
			}

			if received >= 3 && !requested {
				response, err := consumer.Request("today", []byte("20060102"), 2*time.Second)
				if err != nil {
					log.Warn("Request failed", zap.Error(err))
				} else {
					fmt.Printf("today %s\n", response.Payload)
				}
				requested = true
			}
		}

		return nil
	},
}
