// Package cluster implements the Cluster Orchestrator Runtime Backend,
// running guest programs as Kubernetes Jobs for production deployments.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/lumicore/sandrun/pkg/runtime"
	"github.com/lumicore/sandrun/pkg/sandboxerr"
)

// ErrWatchChannelClosed means the Job watch channel closed before a
// terminal Job phase was observed.
var ErrWatchChannelClosed = errors.New("cluster: watch channel closed unexpectedly")

const (
	MaxMemory = "512Mi"
	MaxCPU    = "1000m"
	ReqMemory = "256Mi"
	ReqCPU    = "250m"

	// MaxOutputSize bounds how much of a pod's combined log we read.
	MaxOutputSize = 4 * 1024 * 1024

	// JobTTLSeconds controls how long finished Jobs linger before GC.
	JobTTLSeconds = 300

	defaultTimeout = 5 * time.Minute
)

// Runtime implements runtime.SandboxRuntime using Kubernetes Jobs. Each run
// materializes a ConfigMap holding the guest's code and RunRequest JSON,
// mounts a namespace-scoped PersistentVolumeClaim subpath for output, and
// watches the Job to completion.
type Runtime struct {
	clientset *kubernetes.Clientset
	namespace string
	pvcClaim  string
}

// New creates a Cluster Orchestrator runtime using in-cluster credentials.
// pvcClaim names the PersistentVolumeClaim whose "output/<jobID>/" subpath
// backs each run's OutputPath.
func New(namespace, pvcClaim string) (*Runtime, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("cluster: in-cluster config: %w (are you running inside Kubernetes?)", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("cluster: build clientset: %w", err)
	}

	if namespace == "" {
		namespace = "default"
	}

	return &Runtime{clientset: clientset, namespace: namespace, pvcClaim: pvcClaim}, nil
}

// Run executes spec as a Kubernetes Job.
func (r *Runtime) Run(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
	startTime := time.Now()

	codeText, requestJSON, err := readCodeAndRequest(spec)
	if err != nil {
		return nil, fmt.Errorf("cluster: job %s: %w: %w", spec.JobID, sandboxerr.ErrBackend, err)
	}

	if err := r.createConfigMap(ctx, spec.JobID, codeText, string(requestJSON)); err != nil {
		return nil, fmt.Errorf("cluster: job %s: create configmap: %w: %w", spec.JobID, sandboxerr.ErrBackend, err)
	}

	job, err := r.createJob(ctx, spec)
	if err != nil {
		cleanupCtx := context.WithoutCancel(ctx)
		r.cleanup(cleanupCtx, spec.JobID)
		return nil, fmt.Errorf("cluster: job %s: create job: %w: %w", spec.JobID, sandboxerr.ErrBackend, err)
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	result, timedOut, watchErr := r.waitForCompletion(ctx, job.Name, timeout)

	cleanupCtx := context.WithoutCancel(ctx)
	go r.cleanup(cleanupCtx, spec.JobID)

	if watchErr != nil {
		return nil, fmt.Errorf("cluster: job %s: %w: %w", spec.JobID, sandboxerr.ErrBackend, watchErr)
	}

	result.Duration = time.Since(startTime)
	if errors.Is(ctx.Err(), context.Canceled) {
		result.Cancelled = true
		return result, fmt.Errorf("cluster: job %s: %w", spec.JobID, sandboxerr.ErrCancelled)
	}

	result.TimedOut = timedOut

	if timedOut {
		return result, fmt.Errorf("cluster: job %s: %w", spec.JobID, sandboxerr.ErrTimeout)
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("cluster: job %s: %w", spec.JobID, &sandboxerr.GuestExitError{ExitCode: result.ExitCode})
	}

	return result, nil
}

// ImageReady always reports true: Kubernetes pulls and validates the image
// as part of scheduling the pod, and a missing image surfaces as a pod
// ImagePullBackOff rather than something this call can check in advance.
func (r *Runtime) ImageReady(ctx context.Context, imageTag string) (bool, error) {
	return true, nil
}

// Close releases no resources: the clientset requires no explicit teardown.
func (r *Runtime) Close() error {
	return nil
}

func readCodeAndRequest(spec runtime.RunSpec) (string, []byte, error) {
	codePath := filepath.Join(spec.CodePath, "main.py")
	raw, err := os.ReadFile(codePath)
	if err != nil {
		return "", nil, fmt.Errorf("read guest source: %w", err)
	}
	return string(raw), spec.RequestJSON, nil
}

func (r *Runtime) createConfigMap(ctx context.Context, jobID, codeText, requestJSON string) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "code-" + jobID,
			Namespace: r.namespace,
			Labels: map[string]string{
				"app":        "sandrun",
				"component":  "guest-code",
				"job-id":     jobID,
				"managed-by": "sandrun",
			},
		},
		Data: map[string]string{
			"main.py":     codeText,
			"request.json": requestJSON,
		},
	}

	_, err := r.clientset.CoreV1().ConfigMaps(r.namespace).Create(ctx, cm, metav1.CreateOptions{})
	return err
}

func (r *Runtime) createJob(ctx context.Context, spec runtime.RunSpec) (*batchv1.Job, error) {
	backoffLimit := int32(0)
	ttlSeconds := int32(JobTTLSeconds)
	outputSubpath := filepath.Join("output", spec.JobID)

	workDir := spec.WorkDir
	if workDir == "" {
		workDir = "/code"
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "run-" + spec.JobID,
			Namespace: r.namespace,
			Labels: map[string]string{
				"app":        "sandrun",
				"component":  "guest-run",
				"job-id":     spec.JobID,
				"managed-by": "sandrun",
			},
		},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: &ttlSeconds,
			BackoffLimit:            &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app":        "sandrun",
						"component":  "guest-run",
						"job-id":     spec.JobID,
						"managed-by": "sandrun",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					SecurityContext: &corev1.PodSecurityContext{
						RunAsNonRoot: ptr(true),
						RunAsUser:    ptr(int64(1000)),
						FSGroup:      ptr(int64(1000)),
						SeccompProfile: &corev1.SeccompProfile{
							Type: corev1.SeccompProfileTypeRuntimeDefault,
						},
					},
					Containers: []corev1.Container{
						{
							Name:    "guest",
							Image:   spec.ImageTag,
							Command: []string{"sh", "-c", "python3 /code/main.py < /code/request.json"},
							WorkingDir: workDir,
							Env:     convertEnv(spec.Env),
							Resources: corev1.ResourceRequirements{
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(MaxCPU),
									corev1.ResourceMemory: resource.MustParse(MaxMemory),
								},
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse(ReqCPU),
									corev1.ResourceMemory: resource.MustParse(ReqMemory),
								},
							},
							SecurityContext: &corev1.SecurityContext{
								AllowPrivilegeEscalation: ptr(false),
								RunAsNonRoot:             ptr(true),
								RunAsUser:                ptr(int64(1000)),
								Capabilities: &corev1.Capabilities{
									Drop: []corev1.Capability{"ALL"},
								},
								ReadOnlyRootFilesystem: ptr(false),
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "code", MountPath: "/code", ReadOnly: true},
								{Name: "output", MountPath: "/output", SubPath: outputSubpath},
								{Name: "tmp", MountPath: "/tmp"},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "code",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: "code-" + spec.JobID},
								},
							},
						},
						{
							Name: "output",
							VolumeSource: corev1.VolumeSource{
								PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
									ClaimName: r.pvcClaim,
								},
							},
						},
						{
							Name: "tmp",
							VolumeSource: corev1.VolumeSource{
								EmptyDir: &corev1.EmptyDirVolumeSource{
									Medium:    corev1.StorageMediumMemory,
									SizeLimit: resource.NewQuantity(64*1024*1024, resource.BinarySI),
								},
							},
						},
					},
				},
			},
		},
	}

	return r.clientset.BatchV1().Jobs(r.namespace).Create(ctx, job, metav1.CreateOptions{})
}

func (r *Runtime) waitForCompletion(ctx context.Context, jobName string, timeout time.Duration) (*runtime.RunOutput, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watcher, err := r.clientset.BatchV1().Jobs(r.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector:  "metadata.name=" + jobName,
		TimeoutSeconds: ptr(int64(timeout.Seconds())),
	})
	if err != nil {
		return nil, false, fmt.Errorf("watch job: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case event, ok := <-watcher.ResultChan():
			if !ok {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return &runtime.RunOutput{Stderr: "run timed out", ExitCode: 137}, true, nil
				}
				return nil, false, ErrWatchChannelClosed
			}

			job, ok := event.Object.(*batchv1.Job)
			if !ok {
				continue
			}

			if job.Status.Succeeded > 0 {
				outputCtx := context.WithoutCancel(ctx)
				out, err := r.getJobOutput(outputCtx, jobName)
				return out, false, err
			}

			if job.Status.Failed > 0 {
				outputCtx := context.WithoutCancel(ctx)
				out, _ := r.getJobOutput(outputCtx, jobName) //nolint:errcheck // best effort output collection
				if out == nil {
					out = &runtime.RunOutput{Stderr: "guest pod failed to execute", ExitCode: 1}
				}
				return out, false, nil
			}

		case <-ctx.Done():
			return &runtime.RunOutput{Stderr: "run timed out", ExitCode: 137}, true, nil
		}
	}
}

func (r *Runtime) getJobOutput(ctx context.Context, jobName string) (*runtime.RunOutput, error) {
	pods, err := r.clientset.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil || len(pods.Items) == 0 {
		return nil, fmt.Errorf("list job pods: %w", err)
	}

	pod := pods.Items[0]

	exitCode := 0
	if len(pod.Status.ContainerStatuses) > 0 {
		if terminated := pod.Status.ContainerStatuses[0].State.Terminated; terminated != nil {
			exitCode = int(terminated.ExitCode)
		}
	}

	logOptions := &corev1.PodLogOptions{Container: "guest"}
	req := r.clientset.CoreV1().Pods(r.namespace).GetLogs(pod.Name, logOptions)
	logStream, err := req.Stream(ctx)
	if err != nil {
		return &runtime.RunOutput{Stderr: fmt.Sprintf("failed to get logs: %v", err), ExitCode: exitCode}, nil
	}
	defer logStream.Close() //nolint:errcheck // read-only operation

	buf := make([]byte, MaxOutputSize)
	n, _ := logStream.Read(buf) //nolint:errcheck // best effort read

	return &runtime.RunOutput{Stdout: string(buf[:n]), ExitCode: exitCode}, nil
}

func (r *Runtime) cleanup(ctx context.Context, jobID string) {
	deletePolicy := metav1.DeletePropagationForeground

	jobName := "run-" + jobID
	_ = r.clientset.BatchV1().Jobs(r.namespace).Delete(ctx, jobName, metav1.DeleteOptions{ //nolint:errcheck // best effort cleanup
		PropagationPolicy: &deletePolicy,
	})

	cmName := "code-" + jobID
	_ = r.clientset.CoreV1().ConfigMaps(r.namespace).Delete(ctx, cmName, metav1.DeleteOptions{}) //nolint:errcheck // best effort cleanup
}

func convertEnv(envVars []string) []corev1.EnvVar {
	result := make([]corev1.EnvVar, 0, len(envVars))
	for _, e := range envVars {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result = append(result, corev1.EnvVar{Name: parts[0], Value: parts[1]})
		}
	}
	return result
}

func ptr[T any](v T) *T {
	return &v
}

var _ runtime.SandboxRuntime = (*Runtime)(nil)
