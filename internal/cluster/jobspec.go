package cluster

// jobSpec builds the batch/v1 Job payload for one aggregated sub-manifest.
// The worker image reads the base64 manifest from the JOB environment
// variable; the "jobid" label ties every job and pod back to the parent
// watermarking job for listing and teardown.
func jobSpec(jobName, namespace, jobID, image, manifestB64 string) map[string]any {
	labels := map[string]any{"jobid": "jobid-" + jobID}
	return map[string]any{
		"apiVersion": "batch/v1",
		"kind":       "Job",
		"metadata": map[string]any{
			"name":      "allinone-job-" + jobName,
			"namespace": namespace,
			"labels":    labels,
		},
		"spec": map[string]any{
			"backoffLimit": 0,
			"template": map[string]any{
				"metadata": map[string]any{
					"labels": labels,
				},
				"spec": map[string]any{
					"restartPolicy": "Never",
					"containers": []any{
						map[string]any{
							"name":  "allinone",
							"image": image,
							"env": []any{
								map[string]any{"name": "JOB", "value": manifestB64},
							},
						},
					},
				},
			},
		},
	}
}
