package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/chitchat/internal/model"
	"github.com/and161185/chitchat/internal/protocol"
)

// parseHandle splits "name#tag".
func parseHandle(s string) (protocol.UserRef, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return protocol.UserRef{}, fmt.Errorf("bad handle %q, want name#tag", s)
	}
	tag, err := strconv.Atoi(s[i+1:])
	if err != nil || tag <= 0 {
		return protocol.UserRef{}, fmt.Errorf("bad tag in %q", s)
	}
	return protocol.UserRef{Username: s[:i], Tag: tag}, nil
}

// parseHandles parses a comma-separated list; empty input yields no handles.
func parseHandles(s string) ([]protocol.UserRef, error) {
	var out []protocol.UserRef
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ref, err := parseHandle(part)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

func parseStatus(s string) (model.Status, error) {
	for st := model.StatusOffline; st.Valid(); st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// messageText picks the inline text or the file contents; exactly one must be set.
func messageText(inline, file string) (string, error) {
	switch {
	case inline != "" && file != "":
		return "", errors.New("use either -m or -file")
	case inline != "":
		return inline, nil
	case file != "":
		b, err := readAll(file)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	default:
		return "", errors.New("need -m or -file")
	}
}
