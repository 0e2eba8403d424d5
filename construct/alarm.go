package construct

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatchactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsstepfunctions"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// alarm fires as soon as the metric reaches one in a single period.
func alarm(scope constructs.Construct, id string, description string, metric awscloudwatch.IMetric) awscloudwatch.Alarm {
	return awscloudwatch.NewAlarm(scope, &id, &awscloudwatch.AlarmProps{
		AlarmDescription:   jsii.String(description),
		Metric:             metric,
		Threshold:          jsii.Number(1),
		EvaluationPeriods:  jsii.Number(1),
		ComparisonOperator: awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_NOT_BREACHING,
	})
}

func createFunctionErrorAlarm(scope constructs.Construct, fn awslambda.IFunction) awscloudwatch.Alarm {
	return alarm(scope, "TriggerErrorsAlarm", "Alarm for trigger Lambda errors",
		fn.MetricErrors(&awscloudwatch.MetricOptions{
			Statistic: jsii.String("Sum"),
			Period:    awscdk.Duration_Minutes(jsii.Number(1)),
		}))
}

func createFailedExecutionsAlarm(scope constructs.Construct, stateMachine awsstepfunctions.IStateMachine) awscloudwatch.Alarm {
	return alarm(scope, "TrainExecutionsFailedAlarm", "Alert when a triggered training execution fails",
		stateMachine.MetricFailed(&awscloudwatch.MetricOptions{
			Statistic: jsii.String("Sum"),
			Period:    awscdk.Duration_Minutes(jsii.Number(5)),
			Unit:      awscloudwatch.Unit_COUNT,
		}))
}

func notify(topic awssns.ITopic, alarms ...awscloudwatch.Alarm) {
	for _, a := range alarms {
		a.AddAlarmAction(awscloudwatchactions.NewSnsAction(topic))
	}
}
