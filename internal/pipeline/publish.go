package pipeline

import (
	"context"
	"fmt"
	"path"

	"clipforge/internal/artifacts"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
)

const stagePublish = "publish"

type publishStage struct {
	store artifacts.Store
}

func (s *publishStage) Name() string { return stagePublish }

// Execute copies every burned clip and its SRT export into the artifact
// store under <video_id>/<task_id>/.
func (s *publishStage) Execute(ctx context.Context, job *stage.Job) error {
	prefix := path.Join(job.Task.Payload.String(queue.FieldVideoID), job.Task.ID)
	for i := range job.Clips {
		clip := &job.Clips[i]
		if clip.FinalPath == "" {
			return services.Wrap(services.ErrStage, stagePublish, "put", fmt.Sprintf("clip %d was not rendered", clip.Index), nil)
		}
		art, err := s.store.Put(ctx, clip.FinalPath, path.Join(prefix, fmt.Sprintf("clip_%02d.mp4", clip.Index)))
		if err != nil {
			return services.Wrap(services.ErrTransientBackend, stagePublish, "put", s.store.Name(), err)
		}
		clip.Artifact = art.URI
		if clip.SRTPath != "" {
			if _, err := s.store.Put(ctx, clip.SRTPath, path.Join(prefix, fmt.Sprintf("clip_%02d.srt", clip.Index))); err != nil {
				return services.Wrap(services.ErrTransientBackend, stagePublish, "put", s.store.Name(), err)
			}
		}
	}
	return nil
}

func (s *publishStage) HealthCheck(context.Context) stage.Health {
	h := stage.Healthy(stagePublish)
	h.Detail = s.store.Name()
	return h
}
