// Package biz 实现 docmind 的业务逻辑。
//
// 摘要流水线：
//
//	PageCount -> PlanUnits -> AppendixDetector -> 每个单元两级质量重试 -> Merge -> 持久化 -> Indexer
//
// 问答：
//
//	ScopeClassifier -> specific: 向量检索文档 + 单元打分 + 重排序
//	                -> general:  HybridSearch 多文档综合
//
// 任务由 JobQueue 排队，BatchWorker 按批次顺序执行。
package biz
