package pooltool

import (
	"context"
	"errors"

	"github.com/flexigpt/llmtools-go"
	llmtoolsgoSpec "github.com/flexigpt/llmtools-go/spec"

	"github.com/flexigpt/skillpool-go/spec"
)

const (
	FuncIDSkillsDiscover llmtoolsgoSpec.FuncID = "github.com/flexigpt/skillpool-go/pooltool.Discover"
	FuncIDSkillsImport   llmtoolsgoSpec.FuncID = "github.com/flexigpt/skillpool-go/pooltool.Import"
	FuncIDSkillsValidate llmtoolsgoSpec.FuncID = "github.com/flexigpt/skillpool-go/pooltool.Validate"
)

// Register registers the pipeline tools into an existing llmtools-go Registry.
// The pipeline is bound by closure.
func Register(r *llmtools.Registry, p spec.Pipeline) error {
	if r == nil {
		return errors.New("nil registry")
	}
	if p == nil {
		return errors.New("nil pipeline")
	}

	// "skills.discover" -> typed -> text output (JSON).
	if err := llmtools.RegisterTypedAsTextTool[spec.DiscoverArgs, spec.DiscoverOut](
		r,
		SkillsDiscoverTool(),
		func(ctx context.Context, args spec.DiscoverArgs) (spec.DiscoverOut, error) {
			return p.DiscoverSkills(ctx, args)
		},
	); err != nil {
		return err
	}

	// "skills.import" -> typed -> text output (JSON).
	if err := llmtools.RegisterTypedAsTextTool[spec.ImportArgs, spec.ImportOut](
		r,
		SkillsImportTool(),
		func(ctx context.Context, args spec.ImportArgs) (spec.ImportOut, error) {
			return p.ImportSkills(ctx, args)
		},
	); err != nil {
		return err
	}

	// "skills.validate" -> typed -> text output (JSON).
	if err := llmtools.RegisterTypedAsTextTool[spec.ValidateArgs, spec.ValidateOut](
		r,
		SkillsValidateTool(),
		func(ctx context.Context, args spec.ValidateArgs) (spec.ValidateOut, error) {
			return p.ValidateImportedSkills(ctx, args)
		},
	); err != nil {
		return err
	}

	return nil
}

func Tools() []llmtoolsgoSpec.Tool {
	return []llmtoolsgoSpec.Tool{
		SkillsDiscoverTool(),
		SkillsImportTool(),
		SkillsValidateTool(),
	}
}

func SkillsDiscoverTool() llmtoolsgoSpec.Tool {
	return llmtoolsgoSpec.Tool{
		SchemaVersion: llmtoolsgoSpec.SchemaVersion,
		ID:            "019c51e6-8b04-7c41-92af-5b31c09d7a10",
		Slug:          "skills.discover",
		Version:       "v1.0.0",
		DisplayName:   "Skills Discover",
		Description:   "Rank candidate skills for a free-text request from the curated skill pool or live code search.",
		Tags:          []string{"skills"},
		ArgSchema: llmtoolsgoSpec.JSONSchema(`{
		  "$schema":"http://json-schema.org/draft-07/schema#",
		  "type":"object",
		  "properties":{
		    "query":{"type":"string","description":"Free-text description of the wanted capability."},
		    "limit":{"type":"integer","minimum":1,"maximum":25,"default":5},
		    "mode":{"type":"string","enum":["auto","skill-pool","code-search"],"default":"auto"},
		    "authToken":{"type":"string","description":"Optional bearer token for the code-search API."},
		    "timeoutMS":{"type":"integer","minimum":0}
		  },
		  "required":["query"],
		  "additionalProperties":false
		}`),
		GoImpl:     llmtoolsgoSpec.GoToolImpl{FuncID: FuncIDSkillsDiscover},
		CreatedAt:  llmtoolsgoSpec.SchemaStartTime,
		ModifiedAt: llmtoolsgoSpec.SchemaStartTime,
	}
}

func SkillsImportTool() llmtoolsgoSpec.Tool {
	return llmtoolsgoSpec.Tool{
		SchemaVersion: llmtoolsgoSpec.SchemaVersion,
		ID:            "019c51e6-8b04-7c41-92af-5b31c09d7a11",
		Slug:          "skills.import",
		Version:       "v1.0.0",
		DisplayName:   "Skills Import",
		Description:   "Copy-install skills from a local path, clone URL, or code-host tree URL into the workspace or managed store.",
		Tags:          []string{"skills"},
		ArgSchema: llmtoolsgoSpec.JSONSchema(`{
		  "$schema":"http://json-schema.org/draft-07/schema#",
		  "type":"object",
		  "properties":{
		    "source":{"type":"string","description":"Local path, clone URL, or code-host tree URL."},
		    "ref":{"type":"string","description":"Branch, tag, or commit to check out."},
		    "subdir":{"type":"string","description":"Subdirectory within the source to scan."},
		    "target":{"type":"string","enum":["workspace","managed"],"default":"workspace"},
		    "workspaceDir":{"type":"string","description":"Required when target is workspace."},
		    "overwrite":{"type":"boolean","default":false},
		    "excludeGlobs":{"type":"array","items":{"type":"string"}},
		    "timeoutMS":{"type":"integer","minimum":0}
		  },
		  "required":["source"],
		  "additionalProperties":false
		}`),
		GoImpl:     llmtoolsgoSpec.GoToolImpl{FuncID: FuncIDSkillsImport},
		CreatedAt:  llmtoolsgoSpec.SchemaStartTime,
		ModifiedAt: llmtoolsgoSpec.SchemaStartTime,
	}
}

func SkillsValidateTool() llmtoolsgoSpec.Tool {
	return llmtoolsgoSpec.Tool{
		SchemaVersion: llmtoolsgoSpec.SchemaVersion,
		ID:            "019c51e6-8b04-7c41-92af-5b31c09d7a12",
		Slug:          "skills.validate",
		Version:       "v1.0.0",
		DisplayName:   "Skills Validate",
		Description:   "Cross-check imported skills against the host loader and eligibility report, optionally auto-installing missing binaries.",
		Tags:          []string{"skills"},
		ArgSchema: llmtoolsgoSpec.JSONSchema(`{
		  "$schema":"http://json-schema.org/draft-07/schema#",
		  "type":"object",
		  "properties":{
		    "workspaceDir":{"type":"string"},
		    "target":{"type":"string","enum":["workspace","managed"],"default":"workspace"},
		    "imported":{
		      "type":"array",
		      "items":{
		        "type":"object",
		        "properties":{
		          "name":{"type":"string"},
		          "sourceDir":{"type":"string"},
		          "targetDir":{"type":"string"},
		          "skillFile":{"type":"string"}
		        },
		        "required":["targetDir"],
		        "additionalProperties":false
		      }
		    },
		    "autoInstall":{"type":"boolean","default":false},
		    "timeoutMS":{"type":"integer","minimum":0}
		  },
		  "required":["imported"],
		  "additionalProperties":false
		}`),
		GoImpl:     llmtoolsgoSpec.GoToolImpl{FuncID: FuncIDSkillsValidate},
		CreatedAt:  llmtoolsgoSpec.SchemaStartTime,
		ModifiedAt: llmtoolsgoSpec.SchemaStartTime,
	}
}
