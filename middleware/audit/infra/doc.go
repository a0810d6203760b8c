// Package infra contém os sinks de auditoria:
//
//   - SlogSink: uma linha estruturada por registro (canal padrão e de fallback)
//   - FileSink: JSON lines encadeado por hash, verificável com VerifyFile
//   - PostgresSink: tabela append-only, também encadeada
//   - KafkaSink: um evento por registro, chaveado pelo IP do cliente
//   - AsyncSink: buffer limitado na frente de qualquer sink
//   - MultiSink: fan-out
package infra
