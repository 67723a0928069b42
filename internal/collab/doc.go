// Package collab содержит клиенты внешних сервисов, которые вызывают действия.
//
// Включает:
//   - summarizer.go  — сервис сбора и суммаризации почты (digest)
//   - deliverer.go   — доставка дайджеста через Mailjet v3.1
//   - caller.go      — исходящие звонки через Bolna
//   - credentials.go — учётные данные агента (refresh token, bolna agent id)
//
// Клиенты возвращают ошибки, обёрнутые в ErrRequest или ErrNotConfigured;
// классификацию для планировщика делает пакет actions.
package collab
