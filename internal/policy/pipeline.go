package policy

import (
	"fmt"

	"dashvault/internal/objects"
	"dashvault/internal/vault"
)

// Config is the immutable per-deployment policy configuration. Exactly one of
// EditMode and ManageableBy selects the authorization variant; leaving both
// empty disables data-source authorization entirely.
type Config struct {
	Encrypter   vault.Encrypter
	AuthSchemes AuthSchemeLookup

	EditMode     EditMode
	ManageableBy ManageableBy

	// DeniedWorkspaceTypes overrides DefaultDeniedWorkspaceTypes when non-nil.
	DeniedWorkspaceTypes []string
}

// Validate rejects configurations that name both authorization variants or an
// unknown policy value.
func (c Config) Validate() error {
	if c.Encrypter == nil {
		return fmt.Errorf("policy: encrypter required")
	}
	if c.EditMode != "" && c.ManageableBy != "" {
		return fmt.Errorf("policy: edit mode and manageable-by are mutually exclusive")
	}
	switch c.EditMode {
	case "", EditModeAdminOnly, EditModeReadOnly:
	default:
		return fmt.Errorf("policy: unknown edit mode %q", c.EditMode)
	}
	switch c.ManageableBy {
	case "", ManageableByAll, ManageableByNone, ManageableByDashboardAdmin:
	default:
		return fmt.Errorf("policy: unknown manageable-by value %q", c.ManageableBy)
	}
	return nil
}

// Pipeline builds one wrapper chain per inbound call. Wrappers hold no
// cross-call state; everything request-specific lives in the CallerContext
// they are constructed with.
type Pipeline struct {
	base objects.Store
	cfg  Config
}

func NewPipeline(base objects.Store, cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{base: base, cfg: cfg}, nil
}

// ForCaller assembles the chain for one request, innermost wrapper first:
//
//	exclusive -> workspace scope -> authorization -> data-source encryption ->
//	credential encryption -> base store
//
// Encryption sits closest to the store so that whatever the outer layers let
// through is still sealed; the workspace wrappers sit outermost so their
// existence lookups see the authorization layer's read passthrough.
func (p *Pipeline) ForCaller(caller CallerContext) objects.Store {
	s := p.base
	s = NewCredentialEncryption(s, p.cfg.Encrypter)
	s = NewDataSourceEncryption(s, p.cfg.Encrypter, p.cfg.AuthSchemes)
	switch {
	case p.cfg.ManageableBy != "":
		s = NewDataSourceManageability(s, p.cfg.ManageableBy, caller)
	case p.cfg.EditMode != "":
		s = NewDataSourcePermission(s, p.cfg.EditMode, caller)
	}
	s = NewWorkspaceScope(s, p.cfg.DeniedWorkspaceTypes)
	s = NewWorkspaceExclusive(s, caller)
	return s
}
