package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topicgraph/application/ports"
	pkgerrors "topicgraph/pkg/errors"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchReporter(t *testing.T) {
	client := &fakeCloudWatch{}
	reporter := NewCloudWatchReporter(client, "TopicGraph", "production")
	now := time.Unix(1700000000, 0)
	reporter.now = func() time.Time { return now }

	require.NoError(t, reporter.ReportStats(context.Background(), ports.RegistryStats{
		Topics: 12, CoreTopics: 3, Synonyms: 4, Pending: 7,
	}))

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "TopicGraph", aws.ToString(input.Namespace))

	values := map[string]float64{}
	for _, d := range input.MetricData {
		values[aws.ToString(d.MetricName)] = aws.ToFloat64(d.Value)
		assert.Equal(t, "production", aws.ToString(d.Dimensions[0].Value))
		assert.True(t, d.Timestamp.Equal(now))
	}
	assert.Equal(t, map[string]float64{
		"RegistryTopics": 12, "CoreTopics": 3, "Synonyms": 4, "PendingTexts": 7,
	}, values)
}

func TestCloudWatchReporter_Error(t *testing.T) {
	reporter := NewCloudWatchReporter(&fakeCloudWatch{err: errors.New("denied")}, "TopicGraph", "test")

	err := reporter.ReportStats(context.Background(), ports.RegistryStats{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsExternal(err))
}
