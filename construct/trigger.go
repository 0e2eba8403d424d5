// Package construct declares the resources that start a training workflow
// whenever a matching object lands in the resource bucket.
package construct

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3assets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsstepfunctions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsstepfunctionstasks"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

const (
	DefaultRoleName     = "AutoML-TS-MLOps-Pipeline-Train-Trigger-Role"
	DefaultFunctionName = "AutoML-TS-MLOps-Pipeline-Upload-Lambda"
	DefaultCodePath     = "lambda/trigger"

	// StateMachineArnEnv is the variable the trigger function reads the
	// workflow ARN from.
	StateMachineArnEnv = "STEP_FUNCTIONS_ARN"

	s3ReadPolicyName   = "s3BucketReadOnly"
	sfnStartPolicyName = "sfnStartExecution"

	// Asynchronous S3 invocations are retried this often before the DLQ.
	asyncRetryAttempts = 2
)

var managedPolicyNames = []string{
	"CloudWatchFullAccess",
	"service-role/AWSLambdaBasicExecutionRole",
	"service-role/AWSLambdaRole",
}

type TriggerConstructProps struct {
	StateMachine   awsstepfunctions.IStateMachine
	ResourceBucket awss3.IBucket
	S3Prefix       string
	S3Suffix       string

	// CodePath is the directory holding the built bootstrap binary.
	CodePath     string
	RoleName     *string
	FunctionName *string

	// AlarmTopic receives alarm notifications when set.
	AlarmTopic awssns.ITopic

	// CanaryDeployment routes uploads through a "Live" alias that CodeDeploy
	// shifts with a 10% canary.
	CanaryDeployment bool
}

// TriggerConstruct wires bucket uploads to a workflow execution.
type TriggerConstruct struct {
	constructs.Construct

	Role   awsiam.Role
	Lambda awslambda.Function
	Task   awsstepfunctions.TaskStateBase

	// Alias is nil unless CanaryDeployment was requested.
	Alias awslambda.Alias

	DeadLetterQueue       awssqs.Queue
	ErrorAlarm            awscloudwatch.Alarm
	FailedExecutionsAlarm awscloudwatch.Alarm
}

func NewTriggerConstruct(scope constructs.Construct, id string, props *TriggerConstructProps) *TriggerConstruct {
	if props == nil || props.StateMachine == nil {
		panic("trigger construct requires a state machine")
	}
	if props.ResourceBucket == nil {
		panic("trigger construct requires a resource bucket")
	}

	c := constructs.NewConstruct(scope, &id)
	trigger := &TriggerConstruct{Construct: c}

	trigger.Role = createTriggerRole(c, props)
	trigger.DeadLetterQueue = createDeadLetterQueue(c)
	trigger.Lambda = createTriggerFunction(c, props, trigger.Role, trigger.DeadLetterQueue)
	trigger.Task = awsstepfunctionstasks.NewStepFunctionsStartExecution(c, jsii.String("StartTrainExecution"),
		&awsstepfunctionstasks.StepFunctionsStartExecutionProps{
			StateMachine: props.StateMachine,
			Input:        awsstepfunctions.TaskInput_FromJsonPathAt(jsii.String("$")),
		})

	trigger.ErrorAlarm = createFunctionErrorAlarm(c, trigger.Lambda)
	trigger.FailedExecutionsAlarm = createFailedExecutionsAlarm(c, props.StateMachine)
	if props.AlarmTopic != nil {
		notify(props.AlarmTopic, trigger.ErrorAlarm, trigger.FailedExecutionsAlarm)
	}

	// The subscription points at whatever receives production traffic.
	var target awslambda.IFunction = trigger.Lambda
	if props.CanaryDeployment {
		trigger.Alias = createCanaryDeployment(c, trigger.Lambda, trigger.ErrorAlarm)
		target = trigger.Alias
	}
	target.AddEventSource(awslambdaeventsources.NewS3EventSourceV2(props.ResourceBucket,
		&awslambdaeventsources.S3EventSourceProps{
			Events:  &[]awss3.EventType{awss3.EventType_OBJECT_CREATED},
			Filters: keyFilters(props.S3Prefix, props.S3Suffix),
		}))

	return trigger
}

func createTriggerRole(scope constructs.Construct, props *TriggerConstructProps) awsiam.Role {
	bucket := props.ResourceBucket

	// Read access to the resource bucket
	s3ReadStatement := awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsii.Strings("s3:GetObject", "s3:ListBucket"),
		Resources: &[]*string{bucket.BucketArn(), bucket.ArnForObjects(jsii.String("*"))},
	})

	// Start executions of the one workflow only
	sfnStartStatement := awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsii.Strings("states:StartExecution"),
		Resources: &[]*string{props.StateMachine.StateMachineArn()},
	})

	managedPolicies := make([]awsiam.IManagedPolicy, 0, len(managedPolicyNames))
	for _, name := range managedPolicyNames {
		managedPolicies = append(managedPolicies, awsiam.ManagedPolicy_FromAwsManagedPolicyName(jsii.String(name)))
	}

	roleName := props.RoleName
	if roleName == nil {
		roleName = jsii.String(DefaultRoleName)
	}

	return awsiam.NewRole(scope, jsii.String("TriggerRole"), &awsiam.RoleProps{
		AssumedBy:       awsiam.NewServicePrincipal(jsii.String("lambda.amazonaws.com"), nil),
		RoleName:        roleName,
		ManagedPolicies: &managedPolicies,
		InlinePolicies: &map[string]awsiam.PolicyDocument{
			s3ReadPolicyName: awsiam.NewPolicyDocument(&awsiam.PolicyDocumentProps{
				Statements: &[]awsiam.PolicyStatement{s3ReadStatement},
			}),
			sfnStartPolicyName: awsiam.NewPolicyDocument(&awsiam.PolicyDocumentProps{
				Statements: &[]awsiam.PolicyStatement{sfnStartStatement},
			}),
		},
	})
}

func createDeadLetterQueue(scope constructs.Construct) awssqs.Queue {
	return awssqs.NewQueue(scope, jsii.String("TriggerDLQ"), &awssqs.QueueProps{
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(14)),
		EnforceSSL:      jsii.Bool(true),
	})
}

func createTriggerFunction(scope constructs.Construct, props *TriggerConstructProps,
	role awsiam.IRole, dlq awssqs.IQueue) awslambda.Function {
	codePath := props.CodePath
	if codePath == "" {
		codePath = DefaultCodePath
	}

	functionName := props.FunctionName
	if functionName == nil {
		functionName = jsii.String(DefaultFunctionName)
	}

	return awslambda.NewFunction(scope, jsii.String("TriggerFunction"), &awslambda.FunctionProps{
		FunctionName:    functionName,
		Runtime:         awslambda.Runtime_PROVIDED_AL2(),
		Handler:         jsii.String("bootstrap"),
		Architecture:    awslambda.Architecture_X86_64(),
		Code:            awslambda.Code_FromAsset(jsii.String(codePath), &awss3assets.AssetOptions{}),
		Role:            role,
		MemorySize:      jsii.Number(256),
		Timeout:         awscdk.Duration_Seconds(jsii.Number(30)),
		RetryAttempts:   jsii.Number(asyncRetryAttempts),
		DeadLetterQueue: dlq,
		Tracing:         awslambda.Tracing_ACTIVE,
		CurrentVersionOptions: &awslambda.VersionOptions{
			RemovalPolicy: awscdk.RemovalPolicy_RETAIN,
			Description:   jsii.String("Automated Version"),
		},
		Environment: &map[string]*string{
			StateMachineArnEnv: props.StateMachine.StateMachineArn(),
		},
	})
}

// keyFilters returns nil when neither filter is set: S3 rejects an empty key
// filter, and no filter means every created object matches.
func keyFilters(prefix, suffix string) *[]*awss3.NotificationKeyFilter {
	if prefix == "" && suffix == "" {
		return nil
	}

	filter := &awss3.NotificationKeyFilter{}
	if prefix != "" {
		filter.Prefix = jsii.String(prefix)
	}
	if suffix != "" {
		filter.Suffix = jsii.String(suffix)
	}
	return &[]*awss3.NotificationKeyFilter{filter}
}
