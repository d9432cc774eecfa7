package runc

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"
)

// Container is runc's view of one container, as printed by state and list.
type Container struct {
	ID          string            `json:"id"`
	Pid         int               `json:"pid"`
	Status      string            `json:"status"`
	Bundle      string            `json:"bundle"`
	Rootfs      string            `json:"rootfs"`
	Created     time.Time         `json:"created"`
	Annotations map[string]string `json:"annotations"`
}

// Version is the parsed output of runc --version.
type Version struct {
	Runc   string
	Commit string
	Spec   string
}

// parseVersion reads the "runc version", "commit:" and "spec:" lines.
func parseVersion(out string) Version {
	var v Version
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "runc version "):
			v.Runc = strings.TrimSpace(strings.TrimPrefix(line, "runc version "))
		case strings.HasPrefix(line, "commit:"):
			v.Commit = strings.TrimSpace(strings.TrimPrefix(line, "commit:"))
		case strings.HasPrefix(line, "spec:"):
			v.Spec = strings.TrimSpace(strings.TrimPrefix(line, "spec:"))
		}
	}
	return v
}

// decodeList decodes a JSON array printed by runc. runc prints "null" for
// an empty list; that decodes to an empty, non-nil slice.
func decodeList[T any](op, out string) ([]T, error) {
	out = strings.TrimSpace(out)
	if out == "" || out == "null" {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		return nil, &JSONError{Op: op, Err: err}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
