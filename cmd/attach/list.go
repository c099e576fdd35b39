package main

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sholden3/aiorchestration-sub008/internal/shared/types"
)

// restBase derives the host's REST root from its WebSocket endpoint
func restBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String(), nil
}

func fetchSessions(base string) (types.SessionList, error) {
	var list types.SessionList
	resp, err := resty.New().
		SetBaseURL(base).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		R().
		SetResult(&list).
		Get("/sessions")
	if err != nil {
		return list, err
	}
	if resp.IsError() {
		return list, fmt.Errorf("host returned %s", resp.Status())
	}
	return list, nil
}

func listSessions(wsURL string, w io.Writer) error {
	base, err := restBase(wsURL)
	if err != nil {
		return err
	}
	list, err := fetchSessions(base)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSHELL\tPID\tSIZE\tACTIVE\tSTARTED")
	for _, s := range list.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%dx%d\t%t\t%s\n",
			s.ID, s.ShellKind, s.PID, s.Cols, s.Rows, s.Active, s.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
