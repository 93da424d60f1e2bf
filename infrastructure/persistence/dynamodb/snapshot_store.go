package dynamodb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/domain/core/aggregates"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/observability"
)

// Client is the subset of the DynamoDB API the snapshot store needs
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

const (
	// payloadEncoding marks a gzip-compressed JSON snapshot
	payloadEncoding = "gzip+json"

	// MaxPayloadBytes keeps the compressed snapshot, plus the item's other
	// attributes, under DynamoDB's 400 KB item limit.
	MaxPayloadBytes = 350 << 10

	// ErrCodeSnapshotTooLarge tags saves rejected for size
	ErrCodeSnapshotTooLarge = "SNAPSHOT_TOO_LARGE"

	// maxDecodedBytes bounds decompression of a stored payload
	maxDecodedBytes = 256 << 20
)

// SnapshotStore keeps the registry snapshot as a single item:
// PK = SNAPSHOT#<id>, SK = CURRENT. The snapshot itself is stored as a
// gzip-compressed JSON binary attribute.
type SnapshotStore struct {
	client     Client
	tableName  string
	snapshotID string
	logger     *zap.Logger
	tracer     *observability.Tracer
	now        func() time.Time
}

var _ ports.SnapshotStore = (*SnapshotStore)(nil)

// snapshotItem is the DynamoDB item layout
type snapshotItem struct {
	PK          string               `dynamodbav:"PK"`
	SK          string               `dynamodbav:"SK"`
	EntityType  string               `dynamodbav:"EntityType"`
	SnapshotID  string               `dynamodbav:"SnapshotID"`
	Version     int                  `dynamodbav:"Version"`
	SavedAt     string               `dynamodbav:"SavedAt"`
	SavedAtNano int64                `dynamodbav:"SavedAtNano"`
	TopicCount  int                  `dynamodbav:"TopicCount"`
	Encoding    string               `dynamodbav:"Encoding,omitempty"`
	Payload     []byte               `dynamodbav:"Payload,omitempty"`
	Snapshot    *aggregates.Snapshot `dynamodbav:"Snapshot,omitempty"` // items written before compression
	TTL         int64                `dynamodbav:"TTL,omitempty"`      // Unix seconds, DynamoDB TTL attribute
}

// NewSnapshotStore creates a DynamoDB-backed snapshot store
func NewSnapshotStore(client Client, tableName, snapshotID string, logger *zap.Logger, tracer *observability.Tracer) *SnapshotStore {
	return &SnapshotStore{
		client:     client,
		tableName:  tableName,
		snapshotID: snapshotID,
		logger:     logger,
		tracer:     tracer,
		now:        time.Now,
	}
}

func (s *SnapshotStore) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("SNAPSHOT#%s", s.snapshotID)},
		"SK": &types.AttributeValueMemberS{Value: "CURRENT"},
	}
}

// Load reads the snapshot item. Items past their TTL are treated as absent
// since DynamoDB deletes expired items lazily.
func (s *SnapshotStore) Load(ctx context.Context) (*aggregates.Snapshot, error) {
	var snap *aggregates.Snapshot

	err := s.tracer.TraceFunction(ctx, "dynamodb.LoadSnapshot", func(ctx context.Context) error {
		result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.tableName),
			Key:            s.key(),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return pkgerrors.NewDatabaseError("load snapshot", err)
		}
		if len(result.Item) == 0 {
			return nil
		}

		var item snapshotItem
		if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
			return pkgerrors.NewDatabaseError("unmarshal snapshot", err)
		}
		if item.TTL > 0 && s.now().Unix() > item.TTL {
			s.logger.Info("Stored snapshot has expired", zap.String("snapshotID", s.snapshotID))
			return nil
		}
		switch {
		case len(item.Payload) > 0:
			if item.Encoding != payloadEncoding {
				return pkgerrors.NewDatabaseError("load snapshot",
					fmt.Errorf("unsupported payload encoding %q", item.Encoding))
			}
			decoded, err := decodeSnapshot(item.Payload)
			if err != nil {
				return pkgerrors.NewDatabaseError("decode snapshot", err)
			}
			snap = decoded
		case item.Snapshot != nil:
			snap = item.Snapshot
		default:
			return pkgerrors.NewDatabaseError("load snapshot", errors.New("item has no snapshot attribute"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Save writes the snapshot item. A save older than the stored one is
// rejected so concurrent writers cannot roll the registry back.
func (s *SnapshotStore) Save(ctx context.Context, snap *aggregates.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return pkgerrors.NewValidationError("snapshot is required")
	}

	payload, err := encodeSnapshot(snap)
	if err != nil {
		return pkgerrors.NewInternalError("failed to encode snapshot").WithCause(err)
	}
	if len(payload) > MaxPayloadBytes {
		return pkgerrors.NewValidationError(fmt.Sprintf(
			"compressed snapshot is %d bytes, over the %d byte DynamoDB item budget", len(payload), MaxPayloadBytes)).
			WithCode(ErrCodeSnapshotTooLarge).
			WithDetails(map[string]interface{}{"topics": len(snap.Topics), "payload_bytes": len(payload)})
	}

	item := snapshotItem{
		PK:          fmt.Sprintf("SNAPSHOT#%s", s.snapshotID),
		SK:          "CURRENT",
		EntityType:  "SNAPSHOT",
		SnapshotID:  s.snapshotID,
		Version:     snap.Version,
		SavedAt:     snap.SavedAt.UTC().Format(time.RFC3339),
		SavedAtNano: snap.SavedAt.UnixNano(),
		TopicCount:  len(snap.Topics),
		Encoding:    payloadEncoding,
		Payload:     payload,
	}
	if ttl > 0 {
		item.TTL = s.now().Add(ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal snapshot", err)
	}

	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name("SavedAtNano").LessThanEqual(expression.Value(item.SavedAtNano)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.NewInternalError("failed to build condition expression").WithCause(err)
	}

	return s.tracer.TraceFunction(ctx, "dynamodb.SaveSnapshot", func(ctx context.Context) error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      av,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				s.logger.Warn("Skipped stale snapshot save",
					zap.String("snapshotID", s.snapshotID),
					zap.Time("savedAt", snap.SavedAt))
				return pkgerrors.NewConflictError("a newer snapshot is already stored").WithCause(err)
			}
			return pkgerrors.NewDatabaseError("save snapshot", err)
		}

		s.logger.Debug("Snapshot saved to DynamoDB",
			zap.String("snapshotID", s.snapshotID),
			zap.Int("topics", item.TopicCount),
			zap.Int("payloadBytes", len(payload)))
		return nil
	})
}

func encodeSnapshot(snap *aggregates.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(payload []byte) (*aggregates.Snapshot, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var snap aggregates.Snapshot
	if err := json.NewDecoder(io.LimitReader(zr, maxDecodedBytes)).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
