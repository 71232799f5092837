package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"flagroutes/internal/model"
)

func newTail() *cobra.Command {
	var (
		server  string
		routeID int64
		count   int
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream route change events from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := eventsURL(server, routeID)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			c, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), u, nil)
			if err != nil {
				return errors.Wrapf(err, "dial %s", u)
			}
			defer func() { _ = c.Close() }()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			go func() {
				<-sig
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = c.Close()
			}()

			out := cmd.OutOrStdout()
			for n := 0; count == 0 || n < count; n++ {
				var evt model.RouteEvent
				if err := c.ReadJSON(&evt); err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						return nil
					}
					return errors.Wrap(err, "read event")
				}
				fmt.Fprintf(out, "%s %-16s route=%d client=%d\n",
					evt.TS.Format(time.RFC3339), evt.Type, evt.RouteID, evt.ClientID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the API")
	cmd.Flags().Int64Var(&routeID, "route", 0, "route to follow (0 follows every route)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many events (0 streams until interrupted)")
	return cmd
}

// eventsURL maps the API base URL onto its websocket event endpoint.
func eventsURL(server string, routeID int64) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", errors.Wrap(err, "server url")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported server scheme %q", u.Scheme)
	}
	if routeID < 0 {
		return "", errors.New("route id must not be negative")
	}
	if routeID == 0 {
		u.Path = "/v1/events/ws"
	} else {
		u.Path = "/v1/routes/" + strconv.FormatInt(routeID, 10) + "/events/ws"
	}
	return u.String(), nil
}
