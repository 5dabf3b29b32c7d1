package kafka

import (
	"context"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProduceClient struct {
	mu       sync.Mutex
	produced []*kgo.Record
	failOn   func(*kgo.Record) error
	pingErr  error
	pings    int
	flushed  bool
	closed   bool
}

func (f *fakeProduceClient) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res kgo.ProduceResults
	for _, r := range rs {
		if f.failOn != nil {
			if err := f.failOn(r); err != nil {
				res = append(res, kgo.ProduceResult{Record: r, Err: err})
				continue
			}
		}
		r.Offset = int64(len(f.produced))
		f.produced = append(f.produced, r)
		res = append(res, kgo.ProduceResult{Record: r})
	}
	return res
}

func (f *fakeProduceClient) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = true
	return nil
}

func (f *fakeProduceClient) Request(_ context.Context, _ kmsg.Request) (kmsg.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return metadataResponse(f.pingErr)
}

func (f *fakeProduceClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeProduceClient) records() []*kgo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*kgo.Record(nil), f.produced...)
}

type fakeGroupClient struct {
	fetches chan kgo.Fetches

	mu      sync.Mutex
	added   []string
	marked  []*kgo.Record
	commits int
	pingErr error
	closed  bool
}

func newFakeGroupClient() *fakeGroupClient {
	return &fakeGroupClient{fetches: make(chan kgo.Fetches, 8)}
}

func (f *fakeGroupClient) PollFetches(ctx context.Context) kgo.Fetches {
	select {
	case fs := <-f.fetches:
		return fs
	case <-ctx.Done():
		return kgo.NewErrFetch(ctx.Err())
	}
}

func (f *fakeGroupClient) AddConsumeTopics(topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, topics...)
}

func (f *fakeGroupClient) MarkCommitRecords(rs ...*kgo.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, rs...)
}

func (f *fakeGroupClient) CommitMarkedOffsets(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeGroupClient) Request(_ context.Context, _ kmsg.Request) (kmsg.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return metadataResponse(f.pingErr)
}

func (f *fakeGroupClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeGroupClient) addedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

func (f *fakeGroupClient) markedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marked)
}

func (f *fakeGroupClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func metadataResponse(err error) (kmsg.Response, error) {
	if err != nil {
		return nil, err
	}
	resp := kmsg.NewPtrMetadataResponse()
	resp.Brokers = []kmsg.MetadataResponseBroker{kmsg.NewMetadataResponseBroker()}
	return resp, nil
}

// fetchOf puts each record in its own topic partition of a single fetch,
// preserving argument order.
func fetchOf(recs ...*kgo.Record) kgo.Fetches {
	var f kgo.Fetch
	for _, r := range recs {
		f.Topics = append(f.Topics, kgo.FetchTopic{
			Topic: r.Topic,
			Partitions: []kgo.FetchPartition{{
				Partition: r.Partition,
				Records:   []*kgo.Record{r},
			}},
		})
	}
	return kgo.Fetches{f}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func testConfig(brokers ...string) ConnectionConfig {
	return BuildConfig(RawSettings{Brokers: brokers}, zap.NewNop())
}
