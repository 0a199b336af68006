package container

import (
	"context"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go/service/ecs"

	"github.com/loadforge/loadforge/pkg/api"
)

// ECS is the production api.ContainerClient, backed by AWS ECS Fargate.
// Each worker's container group is one ECS task, launched from the
// configured task definition family with the worker's env and resource
// shape applied as task overrides. The image argument to Create is not
// used: the task definition determines which image runs.
type ECS struct {
	client         *ecs.ECS
	logs           *cloudwatchlogs.CloudWatchLogs
	cluster        string
	taskDefFamily  string
	subnets        []string
	securityGroups []string
	logGroup       string
}

var _ api.ContainerClient = (*ECS)(nil)

// ECSConfig is the static, per-run-plan-independent configuration needed to
// launch Fargate tasks.
type ECSConfig struct {
	Cluster        string
	TaskDefFamily  string
	Subnets        []string
	SecurityGroups []string
	LogGroup       string
}

// NewECS builds an ECS-backed container client.
func NewECS(sess *session.Session, cfg ECSConfig) *ECS {
	return &ECS{
		client:         ecs.New(sess),
		logs:           cloudwatchlogs.New(sess),
		cluster:        cfg.Cluster,
		taskDefFamily:  cfg.TaskDefFamily,
		subnets:        cfg.Subnets,
		securityGroups: cfg.SecurityGroups,
		logGroup:       cfg.LogGroup,
	}
}

func (e *ECS) Create(ctx context.Context, groupName, image string, env map[string]string, cpuCores, memGiB float64) (string, error) {
	envOverrides := make([]*ecs.KeyValuePair, 0, len(env))
	for k, v := range env {
		envOverrides = append(envOverrides, &ecs.KeyValuePair{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := e.client.RunTaskWithContext(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(e.cluster),
		TaskDefinition: aws.String(e.taskDefFamily),
		LaunchType:     aws.String(ecs.LaunchTypeFargate),
		Count:          aws.Int64(1),
		NetworkConfiguration: &ecs.NetworkConfiguration{
			AwsvpcConfiguration: &ecs.AwsVpcConfiguration{
				Subnets:        aws.StringSlice(e.subnets),
				SecurityGroups: aws.StringSlice(e.securityGroups),
				AssignPublicIp: aws.String(ecs.AssignPublicIpEnabled),
			},
		},
		Overrides: &ecs.TaskOverride{
			ContainerOverrides: []*ecs.ContainerOverride{
				{
					Name:        aws.String(groupName),
					Environment: envOverrides,
				},
			},
			Cpu:    aws.String(cpuToUnits(cpuCores)),
			Memory: aws.String(memToMiB(memGiB)),
		},
		Tags: []*ecs.Tag{
			{Key: aws.String("loadforge.group"), Value: aws.String(groupName)},
		},
	})
	if err != nil {
		return "", classifyECSError(err, groupName)
	}

	if len(out.Failures) > 0 {
		f := out.Failures[0]
		return "", api.NewError(api.ErrProviderFatal, "ecs run_task failure for "+groupName+": "+aws.StringValue(f.Reason), nil)
	}
	if len(out.Tasks) == 0 {
		return "", api.NewError(api.ErrProviderFatal, "ecs run_task returned no tasks for "+groupName, nil)
	}

	return aws.StringValue(out.Tasks[0].TaskArn), nil
}

func (e *ECS) Status(ctx context.Context, providerID string) (api.ContainerStatus, error) {
	out, err := e.client.DescribeTasksWithContext(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(e.cluster),
		Tasks:   aws.StringSlice([]string{providerID}),
	})
	if err != nil {
		return api.ContainerStatus{}, api.NewError(api.ErrProviderUnavailable, "ecs describe_tasks failed for "+providerID, err)
	}
	if len(out.Tasks) == 0 {
		return api.ContainerStatus{State: api.ContainerStateUnknown}, nil
	}

	task := out.Tasks[0]
	switch aws.StringValue(task.LastStatus) {
	case "RUNNING":
		return api.ContainerStatus{State: api.ContainerStateRunning}, nil
	case "STOPPED":
		code := 0
		if len(task.Containers) > 0 && task.Containers[0].ExitCode != nil {
			code = int(aws.Int64Value(task.Containers[0].ExitCode))
		} else {
			code = 1 // stopped with no reported exit code (e.g. task-level failure).
		}
		return api.ContainerStatus{State: api.ContainerStateTerminated, ExitCode: &code}, nil
	default:
		return api.ContainerStatus{State: api.ContainerStateUnknown}, nil
	}
}

func (e *ECS) Delete(ctx context.Context, providerID string) error {
	_, err := e.client.StopTaskWithContext(ctx, &ecs.StopTaskInput{
		Cluster: aws.String(e.cluster),
		Task:    aws.String(providerID),
		Reason:  aws.String("run cancelled or cleanup"),
	})
	if err != nil && !strings.Contains(err.Error(), "not found") {
		return api.NewError(api.ErrProviderFatal, "ecs stop_task failed for "+providerID, err)
	}
	return nil
}

func (e *ECS) Logs(ctx context.Context, providerID string) ([]byte, error) {
	streamName := logStreamName(e.taskDefFamily, providerID)
	out, err := e.logs.GetLogEventsWithContext(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(e.logGroup),
		LogStreamName: aws.String(streamName),
	})
	if err != nil {
		return nil, api.NewError(api.ErrProviderUnavailable, "cloudwatch get_log_events failed for "+providerID, err)
	}

	var b strings.Builder
	for _, ev := range out.Events {
		b.WriteString(aws.StringValue(ev.Message))
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

func classifyECSError(err error, groupName string) error {
	msg := err.Error()
	if strings.Contains(msg, "ThrottlingException") || strings.Contains(msg, "Throttling") {
		return api.NewError(api.ErrProviderThrottled, "ecs run_task throttled for "+groupName, err)
	}
	return api.NewError(api.ErrProviderFatal, "ecs run_task failed for "+groupName, err)
}

func logStreamName(family, taskArn string) string {
	idx := strings.LastIndex(taskArn, "/")
	taskID := taskArn
	if idx >= 0 {
		taskID = taskArn[idx+1:]
	}
	return family + "/" + family + "/" + taskID
}

func cpuToUnits(cores float64) string {
	// ECS task-level CPU is specified in vCPU units where 1024 = 1 vCPU.
	return strconv.Itoa(int(cores * 1024))
}

func memToMiB(gib float64) string {
	return strconv.Itoa(int(gib * 1024))
}
