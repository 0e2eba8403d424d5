package construct

import (
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscodedeploy"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

const liveAliasName = "Live"

// createCanaryDeployment publishes the function behind a Live alias and lets
// CodeDeploy shift traffic to new versions, rolling back on errorAlarm.
func createCanaryDeployment(scope constructs.Construct, fn awslambda.Function,
	errorAlarm awscloudwatch.IAlarm) awslambda.Alias {
	alias := awslambda.NewAlias(scope, jsii.String("LiveAlias"), &awslambda.AliasProps{
		AliasName:   jsii.String(liveAliasName),
		Description: jsii.String("Upload trigger alias"),
		Version:     fn.CurrentVersion(),
	})
	// The function's own setting only covers $LATEST.
	alias.ConfigureAsyncInvoke(&awslambda.EventInvokeConfigOptions{
		RetryAttempts: jsii.Number(asyncRetryAttempts),
	})

	app := awscodedeploy.NewLambdaApplication(scope, jsii.String("TriggerDeployApp"), &awscodedeploy.LambdaApplicationProps{})

	awscodedeploy.NewLambdaDeploymentGroup(scope, jsii.String("TriggerCanaryDeployment"),
		&awscodedeploy.LambdaDeploymentGroupProps{
			Application:      app,
			Alias:            alias,
			DeploymentConfig: awscodedeploy.LambdaDeploymentConfig_CANARY_10PERCENT_5MINUTES(),
			AutoRollback: &awscodedeploy.AutoRollbackConfig{
				FailedDeployment:  jsii.Bool(true),
				StoppedDeployment: jsii.Bool(true),
				DeploymentInAlarm: jsii.Bool(true),
			},
			Alarms: &[]awscloudwatch.IAlarm{errorAlarm},
		})

	return alias
}
