// Command attendctl is a terminal client for the attendance auth API. It
// drives the same client store and route guard a browser front end would.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"golang.org/x/term"

	"attendance/internal/apiclient"
	"attendance/internal/authstore"
	"attendance/internal/routeguard"
)

func main() {
	apiURL := flag.String("api", envDefault("ATTENDANCE_API", "http://localhost:5000"), "auth API base url")
	locale := flag.String("locale", envDefault("ATTENDANCE_LOCALE", "en"), "language for emails sent on your behalf")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cli, err := apiclient.New(*apiURL, apiclient.WithLocale(*locale))
	if err != nil {
		log.Fatalf("%v", err)
	}

	store := authstore.New(cli)
	defer store.Close()

	a := &app{
		store: store,
		table: routeguard.NewTable(routeguard.DefaultRoutes(), routeguard.PathDashboard),
		in:    bufio.NewReader(os.Stdin),
		out:   os.Stdout,
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
		path: routeguard.PathDashboard,
	}

	fmt.Fprintf(a.out, "connecting to %s\n", *apiURL)
	a.boot(ctx)
	a.run(ctx)
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
