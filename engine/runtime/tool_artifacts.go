package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"durableagent.dev/engine/api"
	"durableagent.dev/engine/planner"
	"durableagent.dev/engine/tools"
)

// normalizeToolArtifacts encodes each artifact attached to tr using the server-data
// codec the tool declared for that artifact's Kind, replacing Artifact.Data (a
// concrete Go value produced by the tool) with its canonical json.RawMessage
// encoding. Artifacts whose Data is already json.RawMessage are left untouched.
//
// A tool must declare a ServerDataSpec for every artifact kind it produces;
// normalizeToolArtifacts returns an error if tr carries an artifact kind the
// tool's spec does not declare, since there would be no codec to encode it with.
func (r *Runtime) normalizeToolArtifacts(ctx context.Context, toolName tools.Ident, tr *planner.ToolResult) error {
	if tr == nil || len(tr.Artifacts) == 0 {
		return nil
	}
	spec, ok := r.ToolSpec(toolName)
	if !ok {
		return fmt.Errorf("normalize artifacts: unknown tool spec for %s", toolName)
	}
	specs := make(map[string]*tools.ServerDataSpec, len(spec.ServerData))
	for _, sd := range spec.ServerData {
		if sd == nil {
			continue
		}
		specs[sd.Kind] = sd
	}

	for _, art := range tr.Artifacts {
		if art == nil {
			continue
		}
		if _, already := art.Data.(json.RawMessage); already {
			continue
		}
		sd, ok := specs[art.Kind]
		if !ok || sd.Type.Codec.ToJSON == nil {
			return fmt.Errorf("normalize artifacts: tool %s declares no server-data codec for artifact kind %q", toolName, art.Kind)
		}
		raw, err := sd.Type.Codec.ToJSON(art.Data)
		if err != nil {
			return fmt.Errorf("normalize artifacts: encode %s artifact %q: %w", toolName, art.Kind, err)
		}
		art.Data = json.RawMessage(raw)
	}
	return nil
}

// toAPIToolArtifacts converts normalized planner artifacts (Data already encoded
// to json.RawMessage) into their workflow-boundary safe wire form. Artifacts
// whose Data has not been normalized are skipped, since there is no safe way to
// cross the boundary with an untyped Go value.
func toAPIToolArtifacts(artifacts []*planner.Artifact) []*api.ToolArtifact {
	if len(artifacts) == 0 {
		return nil
	}
	out := make([]*api.ToolArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		raw, ok := a.Data.(json.RawMessage)
		if !ok {
			continue
		}
		out = append(out, &api.ToolArtifact{
			Kind:       a.Kind,
			Data:       raw,
			SourceTool: a.SourceTool,
			RunLink:    a.RunLink,
		})
	}
	return out
}

// fromAPIToolArtifacts converts wire-safe tool artifacts back into planner
// artifacts, preserving the canonical JSON bytes as Data.
func fromAPIToolArtifacts(artifacts []*api.ToolArtifact) []*planner.Artifact {
	if len(artifacts) == 0 {
		return nil
	}
	out := make([]*planner.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		out = append(out, &planner.Artifact{
			Kind:       a.Kind,
			SourceTool: a.SourceTool,
			Data:       a.Data,
			RunLink:    a.RunLink,
		})
	}
	return out
}
