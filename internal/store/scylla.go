package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"

	"adloader/internal/content"
)

type ScyllaConfig struct {
	Hosts       []string
	Port        int
	Keyspace    string
	Consistency string
	Replication int
}

// ConnectScylla opens a session on cfg.Keyspace, creating the keyspace and
// the experiences table first. Each step is retried while the cluster
// comes up.
func ConnectScylla(ctx context.Context, cfg ScyllaConfig, log zerolog.Logger) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Timeout = 5 * time.Second
	cluster.Consistency = ParseConsistency(cfg.Consistency)

	var lastErr error
	for i := 0; i < 20; i++ {
		session, err := openScylla(cluster, cfg)
		if err == nil {
			return session, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i+1).Msg("scylla not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("scylla not ready after retries: %w", lastErr)
}

func openScylla(cluster *gocql.ClusterConfig, cfg ScyllaConfig) (*gocql.Session, error) {
	cluster.Keyspace = ""
	tmp, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	err = EnsureKeyspace(tmp, cfg.Keyspace, cfg.Replication)
	tmp.Close()
	if err != nil {
		return nil, err
	}

	cluster.Keyspace = cfg.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(session, cfg.Keyspace); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func EnsureKeyspace(session *gocql.Session, keyspace string, replicationFactor int) error {
	if replicationFactor <= 0 {
		replicationFactor = 3
	}
	stmt := fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}", keyspace, replicationFactor)
	return session.Query(stmt).Exec()
}

func EnsureSchema(session *gocql.Session, keyspace string) error {
	return session.Query(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.experiences (
		id text PRIMARY KEY,
		categories list<text>,
		data text,
		updated_at timestamp
	)`, keyspace)).Exec()
}

func ParseConsistency(c string) gocql.Consistency {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "ONE":
		return gocql.One
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.Quorum
	}
}

type Scylla struct {
	session  *gocql.Session
	keyspace string
}

func NewScylla(session *gocql.Session, keyspace string) *Scylla {
	return &Scylla{session: session, keyspace: keyspace}
}

func (s *Scylla) Get(ctx context.Context, id string) (*content.Experience, error) {
	var (
		rec  = record{ID: id}
		data string
	)
	err := s.session.Query(fmt.Sprintf(`SELECT categories,data FROM %s.experiences WHERE id=?`, s.keyspace), id).
		WithContext(ctx).
		Scan(&rec.Categories, &data)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Data = []byte(data)
	return rec.decode()
}

func (s *Scylla) Put(ctx context.Context, exp *content.Experience) error {
	rec, err := encode(exp)
	if err != nil {
		return err
	}
	return s.session.Query(fmt.Sprintf(`INSERT INTO %s.experiences (id,categories,data,updated_at) VALUES (?,?,?,?)`, s.keyspace),
		rec.ID, rec.Categories, string(rec.Data), time.Now().UTC()).WithContext(ctx).Exec()
}
