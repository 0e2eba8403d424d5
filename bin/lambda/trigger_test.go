package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	sfntypes "github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/outofoffice3/common/logger"
	"github.com/stretchr/testify/assert"
)

const testStateMachineArn = "arn:aws:states:us-east-1:123456789012:stateMachine:train"

type fakeSFN struct {
	inputs []*sfn.StartExecutionInput
	err    error
}

func (f *fakeSFN) StartExecution(_ context.Context, params *sfn.StartExecutionInput, _ ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sfn.StartExecutionOutput{
		ExecutionArn: aws.String(testStateMachineArn + ":" + aws.ToString(params.Name)),
		StartDate:    aws.Time(time.Now()),
	}, nil
}

type fakeS3 struct {
	inputs []*s3.HeadObjectInput
	output *s3.HeadObjectOutput
	err    error
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	if f.output != nil {
		return f.output, nil
	}
	return &s3.HeadObjectOutput{}, nil
}

func newTestTrigger(sfnClient sfnAPI, s3Client s3API) *uploadTrigger {
	return &uploadTrigger{
		sfnClient:       sfnClient,
		s3Client:        s3Client,
		stateMachineArn: testStateMachineArn,
		log:             logger.NewConsoleLogger(logger.LogLevelDebug),
	}
}

func record(eventName, key, sequencer string) events.S3EventRecord {
	return events.S3EventRecord{
		EventName: eventName,
		EventTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: "automl-resources"},
			Object: events.S3Object{
				Key:       key,
				Size:      2048,
				ETag:      "d41d8cd98f00b204e9800998ecf8427e",
				VersionID: "v1",
				Sequencer: sequencer,
			},
		},
	}
}

func TestHandlerStartsExecution(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{}
	s3Client := &fakeS3{output: &s3.HeadObjectOutput{
		ContentType: aws.String("text/csv"),
		Metadata:    map[string]string{"forecast-horizon": "14"},
	}}
	trigger := newTestTrigger(sfnClient, s3Client)

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{record("ObjectCreated:Put", "input/sales+2024.csv", "0055AED6DCD90281E5")},
	})
	assertion.NoError(err)

	assertion.Len(s3Client.inputs, 1)
	assertion.Equal("automl-resources", aws.ToString(s3Client.inputs[0].Bucket))
	assertion.Equal("input/sales 2024.csv", aws.ToString(s3Client.inputs[0].Key))
	// The role cannot read specific versions, so the current one is requested.
	assertion.Nil(s3Client.inputs[0].VersionId)

	assertion.Len(sfnClient.inputs, 1)
	start := sfnClient.inputs[0]
	assertion.Equal(testStateMachineArn, aws.ToString(start.StateMachineArn))
	assertion.Equal(executionName("automl-resources", "input/sales 2024.csv", "0055AED6DCD90281E5"), aws.ToString(start.Name))
	assertion.Regexp(`^sales-2024-csv-[0-9a-f]{8}-0055AED6DCD90281E5$`, aws.ToString(start.Name))

	var input ExecutionInput
	assertion.NoError(json.Unmarshal([]byte(aws.ToString(start.Input)), &input))
	assertion.Equal(ExecutionInput{
		Bucket:      "automl-resources",
		Key:         "input/sales 2024.csv",
		S3URI:       "s3://automl-resources/input/sales 2024.csv",
		Size:        2048,
		ETag:        "d41d8cd98f00b204e9800998ecf8427e",
		VersionID:   "v1",
		ContentType: "text/csv",
		Metadata:    map[string]string{"forecast-horizon": "14"},
		EventTime:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}, input)
}

func TestHandlerSkipsNonCreateEvents(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{}
	s3Client := &fakeS3{}
	trigger := newTestTrigger(sfnClient, s3Client)

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{
			record("ObjectRemoved:Delete", "input/old.csv", "01"),
			record("ObjectCreated:CompleteMultipartUpload", "input/new.csv", "02"),
		},
	})
	assertion.NoError(err)
	assertion.Len(s3Client.inputs, 1)
	assertion.Len(sfnClient.inputs, 1)
	assertion.Equal(executionName("automl-resources", "input/new.csv", "02"), aws.ToString(sfnClient.inputs[0].Name))
}

func TestHandlerMissingStateMachineArn(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{}
	trigger := newTestTrigger(sfnClient, &fakeS3{})
	trigger.stateMachineArn = ""

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{record("ObjectCreated:Put", "input/a.csv", "01")},
	})
	assertion.EqualError(err, "STEP_FUNCTIONS_ARN environment variable not set")
	assertion.Empty(sfnClient.inputs)
}

func TestHandlerExecutionAlreadyExists(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{err: &sfntypes.ExecutionAlreadyExists{Message: aws.String("exists")}}
	trigger := newTestTrigger(sfnClient, &fakeS3{})

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{record("ObjectCreated:Put", "input/a.csv", "01")},
	})
	assertion.NoError(err)
	assertion.Len(sfnClient.inputs, 1)
}

func TestHandlerObjectGone(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{}
	trigger := newTestTrigger(sfnClient, &fakeS3{err: &s3types.NotFound{}})

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{record("ObjectCreated:Put", "input/a.csv", "01")},
	})
	assertion.NoError(err)
	assertion.Empty(sfnClient.inputs)
}

func TestHandlerReturnsFailures(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{err: errors.New("throttled")}
	trigger := newTestTrigger(sfnClient, &fakeS3{})

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{
			record("ObjectCreated:Put", "input/a.csv", "01"),
			record("ObjectCreated:Put", "input/b.csv", "02"),
		},
	})
	assertion.Error(err)
	assertion.ErrorContains(err, "failed to start execution for [s3://automl-resources/input/a.csv]: throttled")
	assertion.ErrorContains(err, "failed to start execution for [s3://automl-resources/input/b.csv]: throttled")
	assertion.Len(sfnClient.inputs, 2)

	s3Client := &fakeS3{err: errors.New("access denied")}
	trigger = newTestTrigger(&fakeSFN{}, s3Client)
	err = trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{record("ObjectCreated:Put", "input/a.csv", "01")},
	})
	assertion.ErrorContains(err, "failed to read object metadata")
}

func TestHandlerInvalidKeyEncoding(t *testing.T) {
	assertion := assert.New(t)
	sfnClient := &fakeSFN{}
	trigger := newTestTrigger(sfnClient, &fakeS3{})

	err := trigger.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{record("ObjectCreated:Put", "input/%zz.csv", "01")},
	})
	assertion.ErrorContains(err, "failed to decode object key")
	assertion.Empty(sfnClient.inputs)
}

func TestExecutionName(t *testing.T) {
	assertion := assert.New(t)
	const seq = "0055AED6DCD90281E5"

	assertion.Equal("", executionName("automl-resources", "input/a.csv", ""))
	assertion.Regexp(`^a-csv-[0-9a-f]{8}-0A1B$`, executionName("automl-resources", "input/a.csv", "0A1B"))
	assertion.Regexp(`^[0-9a-f]{8}-0A1B$`, executionName("automl-resources", "input/", "0A1B"))
	assertion.Regexp(`^data_v2-csv-[0-9a-f]{8}-0A1B$`, executionName("automl-resources", "deep/path/data_v2.csv", "0A1B"))

	// Same event, same name.
	assertion.Equal(executionName("automl-resources", "input/a.csv", seq),
		executionName("automl-resources", "input/a.csv", seq))

	// Same basename and sequencer under different prefixes or buckets.
	regionA := executionName("automl-resources", "region-a/sales.csv", seq)
	regionB := executionName("automl-resources", "region-b/sales.csv", seq)
	assertion.NotEqual(regionA, regionB)
	assertion.NotEqual(regionA, executionName("other-bucket", "region-a/sales.csv", seq))

	long := executionName("automl-resources", strings.Repeat("x", 200)+".csv", seq)
	assertion.Len(long, maxExecutionNameLength)
	assertion.Regexp(`^x+-[0-9a-f]{8}-`+seq+`$`, long)

	// A cut landing on a separator leaves no doubled dash.
	cut := executionName("automl-resources", strings.Repeat("x", 51)+"-"+strings.Repeat("y", 40), seq)
	assertion.NotContains(cut, "--")
	assertion.Regexp(`^x{51}-[0-9a-f]{8}-`+seq+`$`, cut)

	// An oversized sequencer still keeps the key hash.
	oversized := executionName("automl-resources", "a.csv", strings.Repeat("F", 100))
	assertion.Len(oversized, maxExecutionNameLength)
	assertion.Regexp(`^[0-9a-f]{8}-F+$`, oversized)
	assertion.NotEqual(oversized, executionName("automl-resources", "b.csv", strings.Repeat("F", 100)))
}
