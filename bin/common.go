package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsstepfunctions"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/30Piraten/automl-trigger/config"
)

const trainStateMachineName = "AutoML-TS-MLOps-Pipeline-Train"

type TriggerStackProps struct {
	awscdk.StackProps
	Config *config.Config
}

// common.go
func initializeStack(scope constructs.Construct, id string, props *TriggerStackProps) awscdk.Stack {
	var sprops awscdk.StackProps
	if props != nil {
		sprops = props.StackProps
	}

	return awscdk.NewStack(scope, &id, &sprops)
}

func createResourceBucket(stack awscdk.Stack, bucketName string) awss3.IBucket {
	props := &awss3.BucketProps{
		AutoDeleteObjects: jsii.Bool(true),
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		Encryption:        awss3.BucketEncryption_S3_MANAGED,
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		EnforceSSL:        jsii.Bool(true),
		Versioned:         jsii.Bool(true),
	}
	if bucketName != "" {
		props.BucketName = jsii.String(bucketName)
	}

	return awss3.NewBucket(stack, jsii.String("ResourceBucket"), props)
}

// createStateMachine imports the training workflow when its ARN is known and
// otherwise stands up a placeholder to be replaced by the real pipeline.
func createStateMachine(stack awscdk.Stack, stateMachineArn string) awsstepfunctions.IStateMachine {
	if stateMachineArn != "" {
		return awsstepfunctions.StateMachine_FromStateMachineArn(stack,
			jsii.String("TrainStateMachine"), jsii.String(stateMachineArn))
	}

	definition := awsstepfunctions.NewPass(stack, jsii.String("ReceiveUpload"), &awsstepfunctions.PassProps{
		Comment: jsii.String("Placeholder for the training pipeline"),
	}).Next(awsstepfunctions.NewSucceed(stack, jsii.String("TrainingQueued"), nil))

	return awsstepfunctions.NewStateMachine(stack, jsii.String("TrainStateMachine"), &awsstepfunctions.StateMachineProps{
		StateMachineName: jsii.String(trainStateMachineName),
		DefinitionBody:   awsstepfunctions.DefinitionBody_FromChainable(definition),
		Timeout:          awscdk.Duration_Hours(jsii.Number(12)),
		TracingEnabled:   jsii.Bool(true),
	})
}
