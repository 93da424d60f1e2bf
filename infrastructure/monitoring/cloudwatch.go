// Package monitoring pushes engine stats to CloudWatch for deployments that
// cannot be scraped.
package monitoring

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"topicgraph/application/ports"
	pkgerrors "topicgraph/pkg/errors"
)

// Client is the subset of the CloudWatch API the reporter needs
type Client interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchReporter implements ports.StatsReporter
type CloudWatchReporter struct {
	client    Client
	namespace string
	dimension types.Dimension
	now       func() time.Time
}

var _ ports.StatsReporter = (*CloudWatchReporter)(nil)

// NewCloudWatchReporter creates a reporter. Every datum carries an
// Environment dimension.
func NewCloudWatchReporter(client Client, namespace, environment string) *CloudWatchReporter {
	return &CloudWatchReporter{
		client:    client,
		namespace: namespace,
		dimension: types.Dimension{
			Name:  aws.String("Environment"),
			Value: aws.String(environment),
		},
		now: time.Now,
	}
}

// ReportStats sends every stat in one PutMetricData call
func (r *CloudWatchReporter) ReportStats(ctx context.Context, stats ports.RegistryStats) error {
	ts := aws.Time(r.now())
	datum := func(name string, value int) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: []types.Dimension{r.dimension},
			Value:      aws.Float64(float64(value)),
			Unit:       types.StandardUnitCount,
			Timestamp:  ts,
		}
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []types.MetricDatum{
			datum("RegistryTopics", stats.Topics),
			datum("CoreTopics", stats.CoreTopics),
			datum("Synonyms", stats.Synonyms),
			datum("PendingTexts", stats.Pending),
		},
	})
	if err != nil {
		return pkgerrors.NewExternalError("cloudwatch", err)
	}
	return nil
}
