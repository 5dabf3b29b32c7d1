package kafka

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// produceClient is the subset of *kgo.Client used by Producer.
type produceClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Flush(ctx context.Context) error
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
	Close()
}

// groupClient is the subset of *kgo.Client used by Consumer.
type groupClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	AddConsumeTopics(topics ...string)
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
	Close()
}

var (
	_ produceClient = (*kgo.Client)(nil)
	_ groupClient   = (*kgo.Client)(nil)
)

func newProduceClient(opts ...kgo.Opt) (produceClient, error) {
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func newGroupClient(opts ...kgo.Opt) (groupClient, error) {
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

// pingBrokers issues a metadata request for no topics. It forces a dial and,
// when configured, the SASL handshake. It returns the number of brokers
// advertised by the cluster.
func pingBrokers(ctx context.Context, r kmsg.Requestor) (int, error) {
	req := kmsg.NewPtrMetadataRequest()
	req.Topics = []kmsg.MetadataRequestTopic{}
	resp, err := req.RequestWith(ctx, r)
	if err != nil {
		return 0, err
	}
	return len(resp.Brokers), nil
}
