// Package cache memoizes pipeline results in Redis so repeated validation runs
// do not recompute the reference side.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region connect
// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}
// #endregion connect

// #region pipeline
// Pipeline wraps another pipeline. Successful records are stored under a key
// derived from the namespace, the inner pipeline's name, its configuration
// fingerprint and the exact input.
// Only Record is cached; Beats and RR are empty on a hit. Redis failures are
// logged and fall through to the inner pipeline.
type Pipeline struct {
	inner     pipeline.Pipeline
	client    *redis.Client
	ttl       time.Duration
	namespace string
	config    string

	hits   atomic.Int64
	misses atomic.Int64
}

var _ pipeline.Pipeline = (*Pipeline)(nil)

// New wraps inner. config fingerprints the inner pipeline's settings (see
// pipeline.Config.Fingerprint) so records never cross configurations; a zero
// ttl keeps entries forever.
func New(inner pipeline.Pipeline, client *redis.Client, ttl time.Duration, namespace, config string) *Pipeline {
	return &Pipeline{inner: inner, client: client, ttl: ttl, namespace: namespace, config: config}
}

// Name reports the inner pipeline's name.
func (p *Pipeline) Name() string { return p.inner.Name() }

// Stats returns the hit and miss counts so far.
func (p *Pipeline) Stats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}

func (p *Pipeline) AnalyzeSignal(ctx context.Context, w signal.Waveform) (pipeline.Result, error) {
	key := p.key("signal", w.SampleRate, w.Samples)
	return p.cached(ctx, key, func() (pipeline.Result, error) { return p.inner.AnalyzeSignal(ctx, w) })
}

func (p *Pipeline) AnalyzeRR(ctx context.Context, intervalsMs []float64) (pipeline.Result, error) {
	key := p.key("rr", 0, intervalsMs)
	return p.cached(ctx, key, func() (pipeline.Result, error) { return p.inner.AnalyzeRR(ctx, intervalsMs) })
}

func (p *Pipeline) cached(ctx context.Context, key string, compute func() (pipeline.Result, error)) (pipeline.Result, error) {
	// 1. Lookup
	data, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec hrv.Record
		if err := json.Unmarshal(data, &rec); err == nil {
			p.hits.Add(1)
			return pipeline.Result{Record: rec}, nil
		}
		log.Printf("[CACHE] corrupt entry %s, recomputing", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("[CACHE] get %s: %v", key, err)
	}
	p.misses.Add(1)

	// 2. Compute
	res, err := compute()
	if err != nil {
		return res, err
	}

	// 3. Store
	data, err = json.Marshal(res.Record)
	if err != nil {
		return res, nil
	}
	if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
		log.Printf("[CACHE] set %s: %v", key, err)
	}
	return res, nil
}
// #endregion pipeline

// #region key
// Key returns the Redis key for an input. Exported for inspection tools.
func Key(namespace, pipelineName, config, mode string, sampleRate float64, values []float64) string {
	h := sha256.New()
	var buf [8]byte
	h.Write([]byte(config))
	h.Write([]byte{0})
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(sampleRate))
	h.Write([]byte(mode))
	h.Write(buf[:])
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return fmt.Sprintf("hrv:%s:%s:%s", namespace, pipelineName, hex.EncodeToString(h.Sum(nil)))
}

func (p *Pipeline) key(mode string, sampleRate float64, values []float64) string {
	return Key(p.namespace, p.inner.Name(), p.config, mode, sampleRate, values)
}
// #endregion key
