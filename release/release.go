// Package release - hands secret key material to authorized callers
package release

import (
	"context"
	"crypto/rsa"
	"fmt"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

/*
KeyReleaseGate decides whether a caller may obtain the key material of a secret.

It is implemented by vault.Vault.
*/
type KeyReleaseGate interface {
	/*
		AuthorizeKeyRelease fetch the key material of a secret the caller may obtain

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
			@returns the key material
	*/
	AuthorizeKeyRelease(ctx context.Context, caller string, secretID string) ([]byte, error)
}

/*
Engine releases the key material of a secret to an authorized caller.

The material is never returned as stored: it is wrapped with RSA-OAEP to an ephemeral
public key supplied by the caller, so only the holder of the matching private key can
open it.
*/
type Engine interface {
	/*
		ReleaseKey wrap the key material of a secret to the caller's ephemeral key

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
			@param ephemeralKey *rsa.PublicKey - the caller's ephemeral public key
			@returns the wrapped key material
	*/
	ReleaseKey(
		ctx context.Context, caller string, secretID string, ephemeralKey *rsa.PublicKey,
	) ([]byte, error)

	/*
		ReleaseKeyToCertificate wrap the key material of a secret to the public key of a
		x509 certificate

			@param ctx context.Context - execution context
			@param caller string - the caller principal
			@param secretID string - the secret ID
			@param certPEM string - the caller's certificate in PEM format
			@returns the wrapped key material
	*/
	ReleaseKeyToCertificate(
		ctx context.Context, caller string, secretID string, certPEM string,
	) ([]byte, error)

	/*
		OpenReleasedKey unwrap released key material

			@param ctx context.Context - execution context
			@param wrapped []byte - the wrapped key material
			@param ephemeralKey *rsa.PrivateKey - the ephemeral private key
			@returns the key material
	*/
	OpenReleasedKey(
		ctx context.Context, wrapped []byte, ephemeralKey *rsa.PrivateKey,
	) ([]byte, error)
}

// EngineParams key release engine parameters
type EngineParams struct {
	// Gate the key release gate
	Gate KeyReleaseGate `validate:"required"`
	// MinRSAKeyBits smallest ephemeral RSA key accepted
	MinRSAKeyBits int `validate:"gte=2048"`
}

// releaseEngine implements Engine
type releaseEngine struct {
	goutils.Component

	gate          KeyReleaseGate
	crypto        cgoCrypto.Engine
	minRSAKeyBits int
}

/*
NewEngine define a new key release engine

	@param params EngineParams - engine parameters
	@returns engine instance
*/
func NewEngine(params EngineParams) (Engine, error) {
	if err := validator.New().Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid key release engine parameters [%w]", err)
	}

	engine, err := cgoCrypto.NewEngine(log.Fields{
		"package": "cgoutils", "module": "crypto", "component": "crypto-engine",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare core cryptography [%w]", err)
	}

	logTags := log.Fields{"module": "release", "component": "key-release"}

	return &releaseEngine{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		gate:          params.Gate,
		crypto:        engine,
		minRSAKeyBits: params.MinRSAKeyBits,
	}, nil
}

/*
ReleaseKey wrap a secret's key material to the caller's ephemeral RSA key, if the gate
allows the caller to obtain it

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secretID string - the secret ID
	@param ephemeralKey *rsa.PublicKey - the caller's ephemeral public key
	@returns the wrapped key material
*/
func (e *releaseEngine) ReleaseKey(
	ctx context.Context, caller string, secretID string, ephemeralKey *rsa.PublicKey,
) ([]byte, error) {
	if ephemeralKey == nil {
		return nil, fmt.Errorf("no ephemeral key given")
	}
	if ephemeralKey.N.BitLen() < e.minRSAKeyBits {
		return nil, fmt.Errorf(
			"ephemeral key is %d bits, need at least %d", ephemeralKey.N.BitLen(), e.minRSAKeyBits,
		)
	}

	material, err := e.gate.AuthorizeKeyRelease(ctx, caller, secretID)
	if err != nil {
		log.WithError(err).
			WithFields(e.LogTags).
			WithField("caller", caller).
			WithField("secret", secretID).
			Warn("Key release refused")
		return nil, err
	}

	wrapped, err := e.crypto.RSAEncrypt(ctx, material, ephemeralKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key material of secret %s [%w]", secretID, err)
	}

	log.WithFields(e.LogTags).
		WithField("caller", caller).
		WithField("secret", secretID).
		Info("Released secret key material")
	return wrapped, nil
}

/*
ReleaseKeyToCertificate same as ReleaseKey, with the ephemeral key read from a certificate

	@param ctx context.Context - execution context
	@param caller string - the caller principal
	@param secretID string - the secret ID
	@param certPEM string - PEM encoded certificate holding the caller's ephemeral key
	@returns the wrapped key material
*/
func (e *releaseEngine) ReleaseKeyToCertificate(
	ctx context.Context, caller string, secretID string, certPEM string,
) ([]byte, error) {
	cert, err := e.crypto.ParseCertificateFromPEM(ctx, certPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse caller certificate [%w]", err)
	}
	pubKey, err := e.crypto.ReadRSAPublicKeyFromCert(ctx, cert)
	if err != nil {
		return nil, fmt.Errorf("failed to pull RSA public key from caller certificate [%w]", err)
	}
	return e.ReleaseKey(ctx, caller, secretID, pubKey)
}

/*
OpenReleasedKey unwrap key material returned by ReleaseKey

	@param ctx context.Context - execution context
	@param wrapped []byte - the wrapped key material
	@param ephemeralKey *rsa.PrivateKey - the caller's ephemeral private key
	@returns the key material
*/
func (e *releaseEngine) OpenReleasedKey(
	ctx context.Context, wrapped []byte, ephemeralKey *rsa.PrivateKey,
) ([]byte, error) {
	material, err := e.crypto.RSADecrypt(ctx, wrapped, ephemeralKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key material [%w]", err)
	}
	return material, nil
}
