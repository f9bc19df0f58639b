// crypto package handles the digital certificate used to authenticate against the tax authority.
//
// The taxpayer supplies a PKCS#12 (.pfx/.p12) bundle and its password.
// TransformPKCS12 converts the bundle into PEM material that the mutual-TLS clients load at call time.
// Material is held in memory only and never logged (see CertificateMaterial.LogValue).
//
// The package also has the small hashing and canonical JSON helpers used for session manifests.
package crypto
