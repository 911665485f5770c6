package sink

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ipfixcore/pkg/record"
)

// PostgresConfig configures a Postgres/TimescaleDB-backed Sink.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	PoolSize int

	// BatchSize is the number of records buffered before a CopyFrom is
	// issued automatically, independent of an explicit Flush call.
	BatchSize int
}

// Postgres is a Sink that batches transcoded records and bulk-loads them
// into a flow_records hypertable with pgx's CopyFrom, the same pattern
// NetWeaver's database client uses for its own flow ingestion path.
type Postgres struct {
	pool *pgxpool.Pool
	ctx  context.Context

	batchSize int
	maxBuffer int

	mu      sync.Mutex
	extMaps map[uint16]record.ExtensionMap
	mapRefs map[uint16]int
	tmplMap map[uint16]uint16
	nextMap uint16
	buf     []flowRow
}

type flowRow struct {
	receivedAt                         time.Time
	srcIP, dstIP, routerIP             string
	srcPort, dstPort                   int32
	protocol, tos, tcpFlags            int32
	packets, bytes                     int64
	flowStartMs, flowEndMs             int64
	samplingRate                       int32
}

// NewPostgres opens a connection pool and returns a Postgres sink. The
// caller must call Close when done.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.PoolSize,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("sink: parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.PoolSize)
	poolConfig.MinConns = int32(cfg.PoolSize / 4)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("sink: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("sink: ping postgres: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	return &Postgres{
		pool:      pool,
		ctx:       ctx,
		batchSize: batchSize,
		maxBuffer: batchSize * 4,
		extMaps:   make(map[uint16]record.ExtensionMap),
		mapRefs:   make(map[uint16]int),
		tmplMap:   make(map[uint16]uint16),
	}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) RegisterExtensionMap(templateID uint16, em record.ExtensionMap) (uint16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.tmplMap[templateID]; ok {
		if p.extMaps[prev].Equal(em) {
			return prev, false
		}
		p.releaseMap(prev)
	}

	for id, existing := range p.extMaps {
		if existing.Equal(em) {
			p.tmplMap[templateID] = id
			p.mapRefs[id]++
			return id, false
		}
	}
	p.nextMap++
	id := p.nextMap
	p.extMaps[id] = em
	p.tmplMap[templateID] = id
	p.mapRefs[id] = 1
	return id, true
}

// RemoveExtensionMap releases templateID's reference to its extension
// map, evicting the map once no other template still references it.
func (p *Postgres) RemoveExtensionMap(templateID uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.tmplMap[templateID]
	if !ok {
		return
	}
	delete(p.tmplMap, templateID)
	p.releaseMap(id)
}

// releaseMap must be called with mu held.
func (p *Postgres) releaseMap(id uint16) {
	p.mapRefs[id]--
	if p.mapRefs[id] <= 0 {
		delete(p.mapRefs, id)
		delete(p.extMaps, id)
	}
}

// WriteRecord decodes the fixed portion of a Common Record and buffers it
// for the next CopyFrom batch, flushing automatically once BatchSize rows
// have accumulated.
func (p *Postgres) WriteRecord(rec []byte) error {
	row, err := decodeRow(rec)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.buf = append(p.buf, row)
	full := len(p.buf) >= p.batchSize
	p.mu.Unlock()

	if full {
		return p.Flush()
	}
	return nil
}

// Flush bulk-loads any buffered rows via CopyFrom and clears the buffer.
func (p *Postgres) Flush() error {
	p.mu.Lock()
	rows := p.buf
	p.buf = nil
	p.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	conn, err := p.pool.Acquire(p.ctx)
	if err != nil {
		return fmt.Errorf("sink: acquire postgres connection: %w", err)
	}
	defer conn.Release()

	columns := []string{
		"received_at", "source_ip", "destination_ip", "router_ip",
		"source_port", "destination_port", "protocol", "tos", "tcp_flags",
		"packets", "bytes", "flow_start_ms", "flow_end_ms", "sampling_rate",
	}

	_, err = conn.Conn().CopyFrom(
		p.ctx,
		pgx.Identifier{"flow_records"},
		columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
			r := rows[i]
			return []interface{}{
				r.receivedAt, r.srcIP, r.dstIP, r.routerIP,
				r.srcPort, r.dstPort, r.protocol, r.tos, r.tcpFlags,
				r.packets, r.bytes, r.flowStartMs, r.flowEndMs, r.samplingRate,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("sink: copy flow_records: %w", err)
	}
	return nil
}

// FlushExporterInfo upserts one exporter's identity into the exporters
// table, the low-volume counterpart to the flow_records CopyFrom batch.
func (p *Postgres) FlushExporterInfo(info ExporterInfo) error {
	_, err := p.pool.Exec(p.ctx, `
		INSERT INTO exporters (address, domain, sys_id, system_init_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, domain) DO UPDATE
		SET sys_id = EXCLUDED.sys_id, system_init_time = EXCLUDED.system_init_time`,
		info.Addr.String(), info.Domain, info.SysID, info.SystemInitTime)
	if err != nil {
		return fmt.Errorf("sink: upsert exporter info: %w", err)
	}
	return nil
}

// FlushSamplerInfo upserts one exporter's sampler descriptor into the
// samplers table.
func (p *Postgres) FlushSamplerInfo(info SamplerInfo) error {
	_, err := p.pool.Exec(p.ctx, `
		INSERT INTO samplers (address, domain, sampler_id, interval, algorithm)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address, domain, sampler_id) DO UPDATE
		SET interval = EXCLUDED.interval, algorithm = EXCLUDED.algorithm`,
		info.Addr.String(), info.Domain, info.ID, info.Interval, info.Algorithm)
	if err != nil {
		return fmt.Errorf("sink: upsert sampler info: %w", err)
	}
	return nil
}

// EnsureOutputSpace flushes the current batch early if adding n more rows
// would exceed the buffer's soft cap, keeping a slow trickle of records
// from growing buf without bound between BatchSize-triggered flushes.
func (p *Postgres) EnsureOutputSpace(n int) error {
	p.mu.Lock()
	full := len(p.buf)+n > p.maxBuffer
	p.mu.Unlock()
	if !full {
		return nil
	}
	return p.Flush()
}

// CurrentOutputCursor reports how many rows are currently buffered,
// awaiting the next Flush.
func (p *Postgres) CurrentOutputCursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// AdvanceCursor is a no-op bookkeeping hook for Postgres: WriteRecord and
// Flush already manage buf directly, so there is nothing to advance.
func (p *Postgres) AdvanceCursor(n int) {}

func decodeRow(rec []byte) (flowRow, error) {
	if len(rec) < record.FixedHeaderSize {
		return flowRow{}, fmt.Errorf("sink: record too short: %d bytes", len(rec))
	}
	ipv6 := rec[record.OffsetFlags]&record.FlagIPv6Address != 0
	width, countersOffset := record.AddressWidth(ipv6)
	if len(rec) < countersOffset+16 {
		return flowRow{}, fmt.Errorf("sink: record too short for declared family: %d bytes", len(rec))
	}

	srcOff := record.OffsetAddresses
	dstOff := record.OffsetAddresses + width
	srcIP, _ := netip.AddrFromSlice(rec[srcOff : srcOff+width])
	dstIP, _ := netip.AddrFromSlice(rec[dstOff : dstOff+width])

	first := binary.BigEndian.Uint32(rec[record.OffsetFirst:])
	msecFirst := binary.BigEndian.Uint16(rec[record.OffsetMSecFirst:])
	last := binary.BigEndian.Uint32(rec[record.OffsetLast:])
	msecLast := binary.BigEndian.Uint16(rec[record.OffsetMSecLast:])

	// The sampling rate itself never appears in a Common Record: the
	// sequencer folds it into packets/bytes at transcode time and only
	// leaves FlagSampled as a trace. samplingRate is left at its zero value
	// here; a consumer wanting the raw rate has to read it off the exporter
	// state, not the record.
	return flowRow{
		receivedAt:  time.Now().UTC(),
		srcIP:       srcIP.String(),
		dstIP:       dstIP.String(),
		srcPort:     int32(binary.BigEndian.Uint16(rec[record.OffsetSrcPort:])),
		dstPort:     int32(binary.BigEndian.Uint16(rec[record.OffsetDstPort:])),
		protocol:    int32(rec[record.OffsetProtocol]),
		tos:         int32(rec[record.OffsetToS]),
		tcpFlags:    int32(rec[record.OffsetTCPFlags]),
		packets:     int64(binary.BigEndian.Uint64(rec[countersOffset:])),
		bytes:       int64(binary.BigEndian.Uint64(rec[countersOffset+8:])),
		flowStartMs: int64(first)*1000 + int64(msecFirst),
		flowEndMs:   int64(last)*1000 + int64(msecLast),
	}, nil
}
