package policy

import (
	"context"
	"strings"

	"dashvault/internal/objects"
	"dashvault/internal/vault"
)

// Credential material types.
const CredentialMaterialsUsernamePassword = "username_password"

// credentialEncryption intercepts every mutation of "credential" objects,
// validates the credential materials substructure and replaces the plaintext
// password with ciphertext before delegating. Reads and other types pass
// through untouched.
type credentialEncryption struct {
	objects.Store
	enc vault.Encrypter
}

// NewCredentialEncryption wraps next with credential-at-rest encryption.
func NewCredentialEncryption(next objects.Store, enc vault.Encrypter) objects.Store {
	return &credentialEncryption{Store: next, enc: enc}
}

// encryptAttributes validates and transforms the supplied attributes. Partial
// updates run the same logic as creates: an update without credential
// materials is rejected, not exempted.
func (w *credentialEncryption) encryptAttributes(ctx context.Context, attrs map[string]any) (map[string]any, error) {
	title, _ := attrs["title"].(string)
	if strings.TrimSpace(title) == "" {
		return nil, objects.NewBadRequest(`attribute "title" required`)
	}
	materials, ok := attrs["credentialMaterials"].(map[string]any)
	if !ok {
		return nil, objects.NewBadRequest(`attribute "credentialMaterials" required`)
	}
	materialsType, _ := materials["credentialMaterialsType"].(string)
	if materialsType == "" {
		return nil, objects.NewBadRequest(`attribute "credentialMaterials.credentialMaterialsType" required`)
	}
	content, ok := materials["credentialMaterialsContent"].(map[string]any)
	if !ok {
		return nil, objects.NewBadRequest(`attribute "credentialMaterials.credentialMaterialsContent" required`)
	}

	switch materialsType {
	case CredentialMaterialsUsernamePassword:
		username, _ := content["username"].(string)
		if strings.TrimSpace(username) == "" {
			return nil, objects.NewBadRequest(`attribute "credentialMaterials.credentialMaterialsContent.username" required`)
		}
		// Password is optional; when present it must be non-empty and is
		// persisted only as ciphertext. When absent the stored content
		// carries the username alone.
		sealed := map[string]any{"username": username}
		if raw, present := content["password"]; present {
			password, _ := raw.(string)
			if password == "" {
				return nil, objects.NewBadRequest(`attribute "credentialMaterials.credentialMaterialsContent.password" must not be empty`)
			}
			ct, err := w.enc.EncryptAndEncode(ctx, password)
			if err != nil {
				return nil, err
			}
			sealed["password"] = ct
		}
		out := cloneAttributes(attrs)
		out["credentialMaterials"] = map[string]any{
			"credentialMaterialsType":    materialsType,
			"credentialMaterialsContent": sealed,
		}
		return out, nil
	default:
		return nil, objects.NewBadRequest("Invalid credential materials type: '%s'", materialsType)
	}
}

func (w *credentialEncryption) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	if typ != TypeCredential {
		return w.Store.Create(ctx, typ, attrs, opts)
	}
	sealed, err := w.encryptAttributes(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return w.Store.Create(ctx, typ, sealed, opts)
}

func (w *credentialEncryption) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	out := make([]objects.BulkCreateItem, len(objs))
	for i, o := range objs {
		if o.Type == TypeCredential {
			sealed, err := w.encryptAttributes(ctx, o.Attributes)
			if err != nil {
				return nil, err
			}
			o.Attributes = sealed
		}
		out[i] = o
	}
	return w.Store.BulkCreate(ctx, out, opts)
}

func (w *credentialEncryption) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	if typ != TypeCredential {
		return w.Store.Update(ctx, typ, id, attrs, opts)
	}
	sealed, err := w.encryptAttributes(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return w.Store.Update(ctx, typ, id, sealed, opts)
}

func (w *credentialEncryption) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, opts objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	out := make([]objects.BulkUpdateItem, len(objs))
	for i, o := range objs {
		if o.Type == TypeCredential {
			sealed, err := w.encryptAttributes(ctx, o.Attributes)
			if err != nil {
				return nil, err
			}
			o.Attributes = sealed
		}
		out[i] = o
	}
	return w.Store.BulkUpdate(ctx, out, opts)
}
