package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/outofoffice3/common/logger"

	"github.com/30Piraten/automl-trigger/config"
	"github.com/30Piraten/automl-trigger/construct"
)

func NewTriggerStack(scope constructs.Construct, id string, props *TriggerStackProps) awscdk.Stack {
	if props == nil || props.Config == nil {
		panic("trigger stack requires configuration")
	}
	stack := initializeStack(scope, id, props)
	cfg := props.Config

	resources := &TriggerResources{
		stack:          stack,
		resourceBucket: createResourceBucket(stack, cfg.BucketName),
		stateMachine:   createStateMachine(stack, cfg.StateMachineArn),
		alarmTopic:     createMonitoringResources(stack, cfg.AlarmEmail),
	}

	assetPath := cfg.AssetPath
	if assetPath == "" {
		assetPath = lambdaDir()
	}

	trigger := construct.NewTriggerConstruct(stack, "UploadTrigger", &construct.TriggerConstructProps{
		StateMachine:     resources.stateMachine,
		ResourceBucket:   resources.resourceBucket,
		S3Prefix:         cfg.Prefix,
		S3Suffix:         cfg.Suffix,
		CodePath:         assetPath,
		AlarmTopic:       resources.alarmTopic,
		CanaryDeployment: cfg.CanaryDeployment,
	})

	createStackOutputs(resources, trigger)

	return stack
}

// lambdaDir is where the trigger function's bootstrap binary is built.
func lambdaDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("Could not get file name")
	}
	return filepath.Join(filepath.Dir(filename), "lambda")
}

func main() {
	log := logger.NewConsoleLogger(logger.LogLevelInfo)

	cfg, err := config.Load()
	if err != nil {
		log.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	defer jsii.Close()
	log.Infof("synthesizing trigger stack for prefix [%s] suffix [%s]", cfg.Prefix, cfg.Suffix)

	app := awscdk.NewApp(nil)
	NewTriggerStack(app, "AutoMLTriggerStack", &TriggerStackProps{
		StackProps: awscdk.StackProps{
			Env: env(cfg),
		},
		Config: cfg,
	})

	app.Synth(nil)
}

func env(cfg *config.Config) *awscdk.Environment {
	environment := &awscdk.Environment{
		Region: jsii.String(cfg.Region),
	}
	if cfg.Account != "" {
		environment.Account = jsii.String(cfg.Account)
	}
	return environment
}
