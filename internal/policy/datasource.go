package policy

import (
	"context"
	"net/url"
	"strings"

	"dashvault/internal/objects"
	"dashvault/internal/vault"
)

// Built-in data-source auth types.
const (
	AuthTypeNoAuth           = "no_auth"
	AuthTypeUsernamePassword = "username_password"
	AuthTypeSigV4            = "sigv4"
)

// AuthSchemeLookup reports whether an auth type is served by an externally
// registered authentication scheme. Registered schemes own their own
// validation and encryption, so the wrapper passes such records through
// unchanged.
type AuthSchemeLookup func(authType string) bool

// dataSourceEncryption intercepts mutations of "data-source" objects,
// validates the connection shape and encrypts the secret credential fields.
// SigV4 access and secret keys are sealed independently, one ciphertext each.
type dataSourceEncryption struct {
	objects.Store
	enc     vault.Encrypter
	schemes AuthSchemeLookup
}

// NewDataSourceEncryption wraps next with data-source credential encryption.
// schemes may be nil when no external registry is configured.
func NewDataSourceEncryption(next objects.Store, enc vault.Encrypter, schemes AuthSchemeLookup) objects.Store {
	if schemes == nil {
		schemes = func(string) bool { return false }
	}
	return &dataSourceEncryption{Store: next, enc: enc, schemes: schemes}
}

func (w *dataSourceEncryption) encryptCreate(ctx context.Context, attrs map[string]any) (map[string]any, error) {
	title, _ := attrs["title"].(string)
	if strings.TrimSpace(title) == "" {
		return nil, objects.NewBadRequest(`attribute "title" required`)
	}
	endpoint, _ := attrs["endpoint"].(string)
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, objects.NewBadRequest(`attribute "endpoint" is not a valid URL`)
	}
	auth, ok := attrs["auth"].(map[string]any)
	if !ok {
		return nil, objects.NewBadRequest(`attribute "auth" required`)
	}
	authType, _ := auth["type"].(string)
	if authType == "" {
		return nil, objects.NewBadRequest(`attribute "auth.type" required`)
	}
	if w.schemes(authType) {
		return attrs, nil
	}

	switch authType {
	case AuthTypeNoAuth:
		out := cloneAttributes(attrs)
		out["auth"] = map[string]any{"type": authType}
		return out, nil
	case AuthTypeUsernamePassword:
		creds, err := requireCredentials(auth, "username", "password")
		if err != nil {
			return nil, err
		}
		sealed := map[string]any{"username": creds["username"]}
		ct, errEnc := w.enc.EncryptAndEncode(ctx, creds["password"])
		if errEnc != nil {
			return nil, errEnc
		}
		sealed["password"] = ct
		return withAuth(attrs, authType, sealed), nil
	case AuthTypeSigV4:
		creds, err := requireCredentials(auth, "accessKey", "secretKey", "region", "service")
		if err != nil {
			return nil, err
		}
		accessKey, errEnc := w.enc.EncryptAndEncode(ctx, creds["accessKey"])
		if errEnc != nil {
			return nil, errEnc
		}
		secretKey, errEnc := w.enc.EncryptAndEncode(ctx, creds["secretKey"])
		if errEnc != nil {
			return nil, errEnc
		}
		sealed := map[string]any{
			"accessKey": accessKey,
			"secretKey": secretKey,
			"region":    creds["region"],
			"service":   creds["service"],
		}
		return withAuth(attrs, authType, sealed), nil
	default:
		return nil, objects.NewBadRequest("Invalid auth type: '%s'", authType)
	}
}

// encryptUpdate applies the create-time rules to the partial attributes
// supplied: the endpoint is immutable, and only the secret fields present in
// the payload are re-encrypted. No re-fetch-and-merge happens here; merging
// partials is the store's responsibility.
func (w *dataSourceEncryption) encryptUpdate(ctx context.Context, attrs map[string]any) (map[string]any, error) {
	if _, present := attrs["endpoint"]; present {
		return nil, objects.NewBadRequest("Updating a %s endpoint is not supported", TypeDataSource)
	}
	auth, ok := attrs["auth"].(map[string]any)
	if !ok {
		return attrs, nil
	}
	authType, _ := auth["type"].(string)
	if authType == "" {
		return nil, objects.NewBadRequest(`attribute "auth.type" required`)
	}
	if w.schemes(authType) {
		return attrs, nil
	}

	creds, hasCreds := auth["credentials"].(map[string]any)
	switch authType {
	case AuthTypeNoAuth:
		out := cloneAttributes(attrs)
		out["auth"] = map[string]any{"type": authType}
		return out, nil
	case AuthTypeUsernamePassword:
		if !hasCreds {
			return attrs, nil
		}
		sealed, err := w.resealPresent(ctx, creds, "password")
		if err != nil {
			return nil, err
		}
		return withAuth(attrs, authType, sealed), nil
	case AuthTypeSigV4:
		if !hasCreds {
			return attrs, nil
		}
		sealed, err := w.resealPresent(ctx, creds, "accessKey", "secretKey")
		if err != nil {
			return nil, err
		}
		return withAuth(attrs, authType, sealed), nil
	default:
		return nil, objects.NewBadRequest("Invalid auth type: '%s'", authType)
	}
}

// resealPresent re-encrypts only the listed secret fields that appear in the
// partial credentials; everything else is carried over as supplied.
func (w *dataSourceEncryption) resealPresent(ctx context.Context, creds map[string]any, secretFields ...string) (map[string]any, error) {
	sealed := make(map[string]any, len(creds))
	for k, v := range creds {
		sealed[k] = v
	}
	for _, field := range secretFields {
		raw, present := creds[field]
		if !present {
			continue
		}
		value, _ := raw.(string)
		if value == "" {
			return nil, objects.NewBadRequest(`attribute "auth.credentials.%s" must not be empty`, field)
		}
		ct, err := w.enc.EncryptAndEncode(ctx, value)
		if err != nil {
			return nil, err
		}
		sealed[field] = ct
	}
	return sealed, nil
}

func requireCredentials(auth map[string]any, fields ...string) (map[string]string, error) {
	creds, ok := auth["credentials"].(map[string]any)
	if !ok {
		return nil, objects.NewBadRequest(`attribute "auth.credentials" required`)
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, _ := creds[f].(string)
		if strings.TrimSpace(v) == "" {
			return nil, objects.NewBadRequest(`attribute "auth.credentials.%s" required`, f)
		}
		out[f] = v
	}
	return out, nil
}

func withAuth(attrs map[string]any, authType string, credentials map[string]any) map[string]any {
	out := cloneAttributes(attrs)
	out["auth"] = map[string]any{"type": authType, "credentials": credentials}
	return out
}

func (w *dataSourceEncryption) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	if typ != TypeDataSource {
		return w.Store.Create(ctx, typ, attrs, opts)
	}
	sealed, err := w.encryptCreate(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return w.Store.Create(ctx, typ, sealed, opts)
}

func (w *dataSourceEncryption) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	out := make([]objects.BulkCreateItem, len(objs))
	for i, o := range objs {
		if o.Type == TypeDataSource {
			sealed, err := w.encryptCreate(ctx, o.Attributes)
			if err != nil {
				return nil, err
			}
			o.Attributes = sealed
		}
		out[i] = o
	}
	return w.Store.BulkCreate(ctx, out, opts)
}

func (w *dataSourceEncryption) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	if typ != TypeDataSource {
		return w.Store.Update(ctx, typ, id, attrs, opts)
	}
	sealed, err := w.encryptUpdate(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return w.Store.Update(ctx, typ, id, sealed, opts)
}

func (w *dataSourceEncryption) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, opts objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	out := make([]objects.BulkUpdateItem, len(objs))
	for i, o := range objs {
		if o.Type == TypeDataSource {
			sealed, err := w.encryptUpdate(ctx, o.Attributes)
			if err != nil {
				return nil, err
			}
			o.Attributes = sealed
		}
		out[i] = o
	}
	return w.Store.BulkUpdate(ctx, out, opts)
}
