// nfce package holds the domain model shared by the retrieval engine: document keys,
// retrieval results, download sessions and records, and the error taxonomy.
//
// **keys**
// A DocumentKey is the 44-digit access key (chave de acesso) of an electronic consumer invoice.
// Keys are validated once at the edge (ParseDocumentKey, ParseKeyList) so the upstream clients never see an invalid key.
//
// **error handling**
// every component of the engine returns *nfce.Error values with one of the ErrCode* codes.
// Certificate and credential errors end a session before its first key (session.Processor.Prepare), everything else is recorded against the key being processed.
package nfce
