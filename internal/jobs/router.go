package jobs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vaultpress/buildworker/internal/models"
)

// Router maps a TaskName to the pipeline composition the processor should
// run, per the task table: process-all, deploy-repo, process-with-repo,
// wp-import, publish-r2, generate-and-deploy-project.
type Router struct {
	processor *Processor
}

func NewRouter(processor *Processor) *Router {
	return &Router{processor: processor}
}

// Run executes the named task against a job-scoped working directory and
// returns the task's result, ready to be marshaled into Job.Result.
func (r *Router) Run(ctx context.Context, task models.TaskName, workDir string, data map[string]interface{}) (interface{}, error) {
	switch task {
	case models.TaskProcessAll:
		return r.runProcessAll(ctx, workDir, data)
	case models.TaskProcessWithRepo:
		return r.runProcessWithRepo(ctx, workDir, data)
	case models.TaskDeployRepo:
		return r.runDeployRepo(ctx, workDir, data)
	case models.TaskWPImport:
		// External import is expected to have already populated workDir/source;
		// the remainder is identical to deploy-repo against that tree.
		return r.runDeployFromExistingTree(ctx, workDir, data)
	case models.TaskGenerateAndDeployProject:
		// External content generation is expected to have already populated
		// workDir/source; the remainder is identical to deploy-repo.
		return r.runDeployFromExistingTree(ctx, workDir, data)
	case models.TaskPublishR2:
		return r.runPublishR2(ctx, workDir, data)
	default:
		return nil, fmt.Errorf("unknown task %q", task)
	}
}

func (r *Router) runProcessAll(ctx context.Context, workDir string, data map[string]interface{}) (Result, error) {
	vaultRoot := stringField(data, "vaultRoot")
	if vaultRoot == "" {
		vaultRoot = filepath.Join(workDir, "source")
	}
	return r.processor.ProcessAll(ctx, workDir, vaultRoot, data)
}

func (r *Router) runProcessWithRepo(ctx context.Context, workDir string, data map[string]interface{}) (Result, error) {
	snapshot, err := r.fetchSource(ctx, workDir, data)
	if err != nil {
		return Result{}, err
	}
	return r.processor.ProcessAll(ctx, workDir, snapshot, data)
}

func (r *Router) runDeployRepo(ctx context.Context, workDir string, data map[string]interface{}) (interface{}, error) {
	snapshot, err := r.fetchSource(ctx, workDir, data)
	if err != nil {
		return nil, err
	}
	result, err := r.processor.ProcessAll(ctx, workDir, snapshot, data)
	if err != nil {
		return nil, err
	}
	return r.publish(ctx, workDir, data, result)
}

func (r *Router) runDeployFromExistingTree(ctx context.Context, workDir string, data map[string]interface{}) (interface{}, error) {
	vaultRoot := stringField(data, "vaultRoot")
	if vaultRoot == "" {
		vaultRoot = filepath.Join(workDir, "source")
	}
	result, err := r.processor.ProcessAll(ctx, workDir, vaultRoot, data)
	if err != nil {
		return nil, err
	}
	return r.publish(ctx, workDir, data, result)
}

func (r *Router) runPublishR2(ctx context.Context, workDir string, data map[string]interface{}) (interface{}, error) {
	distDir := stringField(data, "distDir")
	if distDir == "" {
		distDir = filepath.Join(workDir, "dist")
	}
	return r.publishDir(ctx, distDir, data)
}

func (r *Router) fetchSource(ctx context.Context, workDir string, data map[string]interface{}) (string, error) {
	req := models.SourceFetchRequest{
		URL:     stringField(data, "repoUrl"),
		Branch:  stringField(data, "branch"),
		Shallow: !boolField(data, "fullClone"),
		Commit:  stringField(data, "commit"),
		Subpath: stringField(data, "subpath"),
	}
	snapshot, err := r.processor.Fetcher.Fetch(ctx, workDir, req)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	if snapshot.InputRoot != "" {
		return snapshot.InputRoot, nil
	}
	return snapshot.Path, nil
}

func (r *Router) publish(ctx context.Context, workDir string, data map[string]interface{}, result Result) (interface{}, error) {
	distDir := filepath.Join(workDir, "dist")
	publishResult, err := r.publishDir(ctx, distDir, data)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"build":   result,
		"publish": publishResult,
	}, nil
}

func (r *Router) publishDir(ctx context.Context, distDir string, data map[string]interface{}) (interface{}, error) {
	opts := r.processor.publishOptions(distDir, data)
	return r.processor.Publisher.Publish(ctx, opts)
}
