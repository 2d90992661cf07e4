package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/httpapi"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// closesIn renders a close time relative to now, e.g. "in 2 hours".
func closesIn(closeTime, now int64) string {
	return humanize.RelTime(time.Unix(closeTime, 0), time.Unix(now, 0), "ago", "from now")
}

func printSessions(w io.Writer, sessions []httpapi.SessionResponse, now int64) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "no sessions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTATE\tCLOSES\tOPTIONS\tVOTES\tVOTERS")
	for _, s := range sessions {
		state := "open"
		if !s.Open {
			state = "closed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Address, state, closesIn(s.CloseTime, now), len(s.Options),
			humanize.Comma(s.TotalVotes), s.VoterPolicy)
	}
	return tw.Flush()
}

func printSession(w io.Writer, s httpapi.SessionResponse, now int64) error {
	state := "open"
	if !s.Open {
		state = "closed"
	}
	fmt.Fprintf(w, "Session:  %s\n", s.Address)
	fmt.Fprintf(w, "Creator:  %s\n", s.Creator)
	fmt.Fprintf(w, "State:    %s, closes %s (%s)\n", state, closesIn(s.CloseTime, now),
		time.Unix(s.CloseTime, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Voters:   %s\n", s.VoterPolicy)
	for _, v := range s.AllowedVoters {
		fmt.Fprintf(w, "          %s\n", v)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nINDEX\tOPTION\tVOTES\tSHARE")
	for _, o := range s.Options {
		share := "-"
		if s.TotalVotes > 0 {
			share = humanize.FtoaWithDigits(float64(o.Count)*100/float64(s.TotalVotes), 1) + "%"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.Index, o.Label, humanize.Comma(o.Count), share)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if leader, ok := s.Leader(); ok && s.TotalVotes > 0 {
		_, err := fmt.Fprintf(w, "Leading:  %s with %s of %s votes\n", leader.Label,
			humanize.Comma(leader.Count), humanize.Comma(s.TotalVotes))
		return err
	}
	return nil
}

func printResult(w io.Writer, verb string, r httpapi.OperationResponse) error {
	fmt.Fprintf(w, "%s", verb)
	if r.SessionAddress != "" {
		fmt.Fprintf(w, " %s", r.SessionAddress)
	}
	fmt.Fprintln(w)
	if r.TxID != "" {
		fmt.Fprintf(w, "Transaction: %s\n", r.TxID)
	}
	if r.ExplorerURL != "" {
		fmt.Fprintf(w, "Explorer:    %s\n", r.ExplorerURL)
	}
	return nil
}

func printFieldErrors(w io.Writer, fields map[string]string) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, fields[name])
	}
}

func printOperations(w io.Writer, ops []*domain.Operation) error {
	if len(ops) == 0 {
		_, err := fmt.Fprintln(w, "no operations")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSESSION\tUPDATED\tDETAIL")
	for _, op := range ops {
		detail := op.TxID
		if op.ErrorCode != "" {
			detail = strings.TrimSpace(op.ErrorCode + ": " + op.ErrorMessage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			op.ID, op.Kind, op.Status, orDash(op.SessionAddress), humanize.Time(op.UpdatedAt), orDash(detail))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
