package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/3kwa/goingnats/client"
	"github.com/3kwa/goingnats/internal/env"
)

// The convenience commands below share one process-wide client, built
// lazily from the environment on first use and torn down when the
// command exits. The core client package knows nothing about it.
var (
	defaultOnce   sync.Once
	defaultClient *client.Client
	defaultErr    error
)

func defaultNATS(ctx context.Context) (*client.Client, error) {
	defaultOnce.Do(func() {
		conf, err := env.LoadConfig(ctx)
		if err != nil {
			defaultErr = err
			return
		}

		log, err := env.MakeLogger(conf.Debug)
		if err != nil {
			defaultErr = err
			return
		}

		defaultClient, defaultErr = client.Connect(ctx, client.Options{
			Name: conf.Name,
			Host: conf.Host,
			Port: conf.Port,
			Log:  log,
		})
	})

	return defaultClient, defaultErr
}

func closeDefaultNATS() {
	if defaultClient != nil {
		_ = defaultClient.Close()
	}
}

var (
	reqTimeout time.Duration
	subCount   int
)

func init() {
	ReqCmd.PersistentFlags().DurationVarP(&reqTimeout, "timeout", "t", 2*time.Second,
		"how long to wait for the response")
	SubCmd.PersistentFlags().IntVarP(&subCount, "count", "n", 0,
		"stop after this many messages, 0 keeps going until interrupted")
}

var PubCmd = &cobra.Command{
	Use:   "pub <subject> [payload]",
	Short: "Publish a payload on a subject",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeDefaultNATS()

		c, err := defaultNATS(cmd.Context())
		if err != nil {
			return err
		}

		var payload []byte
		if len(args) == 2 {
			payload = []byte(args[1])
		}

		return c.Publish(args[0], payload)
	},
}

var ReqCmd = &cobra.Command{
	Use:   "req <subject> [payload]",
	Short: "Request a subject and print the response",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeDefaultNATS()

		c, err := defaultNATS(cmd.Context())
		if err != nil {
			return err
		}

		var payload []byte
		if len(args) == 2 {
			payload = []byte(args[1])
		}

		response, err := c.Request(args[0], payload, reqTimeout)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", response.Payload)
		return nil
	},
}

var SubCmd = &cobra.Command{
	Use:   "sub <pattern>",
	Short: "Subscribe to a pattern and print messages as they arrive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer closeDefaultNATS()

		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		c, err := defaultNATS(ctx)
		if err != nil {
			return err
		}

		if err := c.Subscribe(args[0]); err != nil {
			return err
		}

		printed := 0

		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			for _, message := range c.Get(time.Second) {
				fmt.Printf("%s %s\n", message.Subject, message.Payload)
				printed++

				if subCount > 0 && printed >= subCount {
					return nil
				}
			}
		}
	},
}
