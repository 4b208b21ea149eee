package sink

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Iron-Ham/shipyard/internal/errors"
	"github.com/Iron-Ham/shipyard/internal/job"
)

// Putter is the part of clientv3.KV the etcd sink needs.
type Putter interface {
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
}

// DefaultEtcdWriteTimeout bounds a whole Write when no timeout is set.
const DefaultEtcdWriteTimeout = 10 * time.Second

// Etcd stores each result under {prefix}/{run_id}/{index} and a run summary
// under {prefix}/{run_id}/summary, so other tools can watch deployments.
type Etcd struct {
	kv      Putter
	prefix  string
	timeout time.Duration
	client  *clientv3.Client
}

// RunSummary is the value of the summary key.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Tasks      int            `json:"tasks"`
	Failed     int            `json:"failed"`
	OK         bool           `json:"ok"`
	Counts     map[string]int `json:"counts"`
}

// DialEtcd connects to endpoints and returns a sink that owns the connection.
// The dial does not wait for a server; an unreachable cluster surfaces when
// Write runs out of writeTimeout.
func DialEtcd(endpoints []string, prefix string, dialTimeout, writeTimeout time.Duration) (*Etcd, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to etcd")
	}
	e := NewEtcd(cli, prefix)
	e.client = cli
	if writeTimeout > 0 {
		e.timeout = writeTimeout
	}
	return e, nil
}

// NewEtcd creates a sink over an existing KV.
func NewEtcd(kv Putter, prefix string) *Etcd {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "/shipyard/runs"
	}
	return &Etcd{kv: kv, prefix: prefix, timeout: DefaultEtcdWriteTimeout}
}

// WithTimeout sets the bound on a whole Write and returns e.
func (e *Etcd) WithTimeout(d time.Duration) *Etcd {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Key returns the key of a run entry.
func (e *Etcd) Key(runID, entry string) string {
	return path.Join(e.prefix, runID, entry)
}

// Write puts every result and then the summary. It gives up once the write
// timeout passes, even when ctx can never be cancelled.
func (e *Etcd) Write(ctx context.Context, report *job.Report) error {
	if report == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	for i, r := range report.Results {
		if err := e.put(ctx, e.Key(report.RunID, strconv.Itoa(i)), r); err != nil {
			return err
		}
	}

	summary := RunSummary{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Tasks:      report.Len(),
		Failed:     len(report.Failed()),
		OK:         report.OK(),
		Counts:     make(map[string]int),
	}
	for s, n := range report.Counts() {
		summary.Counts[s.String()] = n
	}
	return e.put(ctx, e.Key(report.RunID, "summary"), summary)
}

func (e *Etcd) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	if _, err := e.kv.Put(ctx, key, string(data)); err != nil {
		return errors.Wrapf(err, "etcd put %s", key)
	}
	return nil
}

// Close releases the connection opened by DialEtcd.
func (e *Etcd) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
