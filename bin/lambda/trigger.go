package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/outofoffice3/common/logger"
)

const (
	stateMachineArnEnv = "STEP_FUNCTIONS_ARN"
	logLevelEnv        = "LOG_LEVEL"

	// Step Functions limits execution names to 80 characters.
	maxExecutionNameLength = 80
	keyHashLength          = 8
)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type sfnAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ExecutionInput is the document each training execution starts with.
type ExecutionInput struct {
	Bucket      string            `json:"bucket"`
	Key         string            `json:"key"`
	S3URI       string            `json:"s3Uri"`
	Size        int64             `json:"size"`
	ETag        string            `json:"etag,omitempty"`
	VersionID   string            `json:"versionId,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	EventTime   time.Time         `json:"eventTime"`
}

type uploadTrigger struct {
	sfnClient       sfnAPI
	s3Client        s3API
	stateMachineArn string
	log             logger.Logger
}

func (t *uploadTrigger) handler(ctx context.Context, event events.S3Event) error {
	if t.stateMachineArn == "" {
		return fmt.Errorf("%s environment variable not set", stateMachineArnEnv)
	}
	t.log.Debugf("received [%d] records", len(event.Records))

	var errs []error
	for _, record := range event.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated:") {
			t.log.Debugf("skipping event [%s]", record.EventName)
			continue
		}
		if err := t.startExecution(ctx, record); err != nil {
			t.log.Errorf("%v", err)
			errs = append(errs, err)
		}
	}

	// Returning an error makes Lambda retry the whole event; executions that
	// already started are deduplicated by name.
	return errors.Join(errs...)
}

func (t *uploadTrigger) startExecution(ctx context.Context, record events.S3EventRecord) error {
	bucket := record.S3.Bucket.Name
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return fmt.Errorf("failed to decode object key [%s]: %w", record.S3.Object.Key, err)
	}

	input := ExecutionInput{
		Bucket:    bucket,
		Key:       key,
		S3URI:     fmt.Sprintf("s3://%s/%s", bucket, key),
		Size:      record.S3.Object.Size,
		ETag:      record.S3.Object.ETag,
		VersionID: record.S3.Object.VersionID,
		EventTime: record.EventTime,
	}

	// Reads the current version: the role holds s3:GetObject but not
	// s3:GetObjectVersion. The event's version ID still goes into the input.
	head, err := t.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			t.log.Infof("object [%s] no longer exists, skipping", input.S3URI)
			return nil
		}
		return fmt.Errorf("failed to read object metadata for [%s]: %w", input.S3URI, err)
	}
	input.ContentType = aws.ToString(head.ContentType)
	if len(head.Metadata) > 0 {
		input.Metadata = head.Metadata
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal execution input: %w", err)
	}

	startInput := &sfn.StartExecutionInput{
		StateMachineArn: aws.String(t.stateMachineArn),
		Input:           aws.String(string(payload)),
	}
	if name := executionName(bucket, key, record.S3.Object.Sequencer); name != "" {
		startInput.Name = aws.String(name)
	}

	out, err := t.sfnClient.StartExecution(ctx, startInput)
	if err != nil {
		var alreadyExists *sfntypes.ExecutionAlreadyExists
		if errors.As(err, &alreadyExists) {
			t.log.Infof("execution [%s] already started for [%s]", aws.ToString(startInput.Name), input.S3URI)
			return nil
		}
		return fmt.Errorf("failed to start execution for [%s]: %w", input.S3URI, err)
	}

	t.log.Infof("started execution [%s] for [%s]", aws.ToString(out.ExecutionArn), input.S3URI)
	return nil
}

// executionName is stable for one S3 event so redelivery cannot start a
// second execution. The hash of bucket/key keeps uploads under different
// prefixes apart. Without a sequencer the service picks the name.
func executionName(bucket, key, sequencer string) string {
	sequencer = invalidNameChars.ReplaceAllString(sequencer, "")
	if sequencer == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(bucket + "/" + key))
	suffix := hex.EncodeToString(sum[:])[:keyHashLength] + "-" + sequencer
	if len(suffix) > maxExecutionNameLength {
		suffix = suffix[:maxExecutionNameLength]
	}

	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.Trim(invalidNameChars.ReplaceAllString(base, "-"), "-")

	room := maxExecutionNameLength - len(suffix) - 1
	if room < 0 {
		room = 0
	}
	if len(base) > room {
		base = strings.TrimRight(base[:room], "-")
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

func main() {
	log := logger.NewConsoleLogger(logger.LogLevelInfo)
	if strings.EqualFold(os.Getenv(logLevelEnv), "debug") {
		log = logger.NewConsoleLogger(logger.LogLevelDebug)
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Errorf("failed to load SDK config, %v", err)
		panic("failed to load sdk config")
	}

	trigger := &uploadTrigger{
		sfnClient:       sfn.NewFromConfig(cfg),
		s3Client:        s3.NewFromConfig(cfg),
		stateMachineArn: os.Getenv(stateMachineArnEnv),
		log:             log,
	}
	lambda.Start(trigger.handler)
}
